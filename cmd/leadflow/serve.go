package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"leadflow/internal/cache"
	"leadflow/internal/config"
	"leadflow/internal/service"
	"leadflow/internal/transport/rest"
	"leadflow/internal/transport/ws"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log)
	logger.Info("starting leadflow",
		"store", cfg.Store.Driver,
		"redis", cfg.Redis.Enabled(),
		"ai", cfg.AI.IsEnabled(),
		"rephrase_model", cfg.AI.Models.Rephrase,
		"closing_model", cfg.AI.Models.Closing,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(reg)

	queue := service.NewPersistQueue(cfg.Engine.PersistWorkers, cfg.Engine.PersistQueueSize, service.RetryConfig{
		MaxAttempts: cfg.Engine.PersistMaxAttempts,
		BackoffBase: cfg.Engine.PersistBackoffBase,
		MaxBackoff:  cfg.Engine.PersistMaxBackoff,
	}, logger, metrics)
	queue.Start()

	generator := service.NewTextGenerator(cfg.AI, logger)
	monitor := service.NewAbandonmentMonitor(nil)
	authSvc := service.NewAuthService(cfg.Auth)
	formSvc := service.NewFormService(store.Forms)

	var (
		locker cache.SessionLocker
		board  cache.LeadBoard
		funnel cache.FunnelCache
		sessCh cache.SessionCache
	)
	if cfg.Redis.Enabled() {
		rdb, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		logger.Info("connected to redis", "addr", cfg.Redis.NormalizedAddr())

		locker = cache.NewRedisLocker(rdb, cfg.Engine.LockTTL, cfg.Engine.LockWait)
		board = cache.NewLeadBoard(rdb)
		funnel = cache.NewFunnelCache(rdb)
		sessCh = cache.NewSessionCache(rdb, cfg.Redis.SessionTTL)
	} else {
		logger.Warn("redis not configured, using in-process session locks without insights")
		locker = cache.NewLocalLocker(cfg.Engine.LockWait)
	}

	sessionSvc := service.NewSessionService(
		store.Forms,
		store.Sessions,
		locker,
		service.NewQuestionSelector(generator, cfg.Engine.TextGenTimeout, cfg.Engine.RephraseQuestions, logger, metrics),
		service.NewResponseProcessor(store.Responses, queue, monitor, logger),
		service.NewLeadScorer(logger, metrics),
		monitor,
		service.NewCompletionRouter(generator, store.Outcomes, queue, cfg.Engine.TextGenTimeout, logger, metrics),
		authSvc,
		logger,
		metrics,
	)
	if sessCh != nil {
		sessionSvc.SetCache(sessCh)
		sessionSvc.SetInsights(board, funnel)
	}

	wsHub := ws.NewHub(logger)
	defer wsHub.Close()
	sessionSvc.SetBroadcaster(wsHub)

	router := rest.NewRouter(&rest.Container{
		AuthService:    authSvc,
		SessionService: sessionSvc,
		FormService:    formSvc,
		InsightService: service.NewInsightService(board, funnel, store.Outcomes),
		WSHub:          wsHub,
		Gatherer:       reg,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Engine.SweepInterval > 0 {
		g.Go(func() error {
			return sessionSvc.RunSweeper(gctx, cfg.Engine.SweepInterval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
		if err := queue.Close(shutdownCtx); err != nil {
			logger.Warn("persist queue did not drain", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
