package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"leadflow/internal/cache"
	"leadflow/internal/model"
	"leadflow/internal/repository"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrFormNotFound        = errors.New("form not found")
	ErrSessionCompleted    = model.ErrSessionCompleted
	ErrSessionBusy         = errors.New("session is being updated by another request")
	ErrRoutingPrecondition = errors.New("lead status unresolved, cannot route to completion")
)

const (
	sweepBatchSize = 100
	releaseTimeout = 2 * time.Second
)

// SessionService drives a session through its steps: check inactivity,
// process answers, score, then either ask more questions or complete.
type SessionService struct {
	forms     repository.FormRepo
	sessions  repository.SessionRepo
	locker    cache.SessionLocker
	selector  *QuestionSelector
	processor *ResponseProcessor
	scorer    *LeadScorer
	monitor   *AbandonmentMonitor
	router    *CompletionRouter
	authSvc   *AuthService
	logger    *slog.Logger
	metrics   *Metrics

	cache       cache.SessionCache
	board       cache.LeadBoard
	funnel      cache.FunnelCache
	broadcaster Broadcaster
}

// NewSessionService creates a new session service
func NewSessionService(
	forms repository.FormRepo,
	sessions repository.SessionRepo,
	locker cache.SessionLocker,
	selector *QuestionSelector,
	processor *ResponseProcessor,
	scorer *LeadScorer,
	monitor *AbandonmentMonitor,
	router *CompletionRouter,
	authSvc *AuthService,
	logger *slog.Logger,
	metrics *Metrics,
) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		forms:     forms,
		sessions:  sessions,
		locker:    locker,
		selector:  selector,
		processor: processor,
		scorer:    scorer,
		monitor:   monitor,
		router:    router,
		authSvc:   authSvc,
		logger:    logger,
		metrics:   metrics,
	}
}

// SetCache puts a snapshot cache in front of the session repository
func (s *SessionService) SetCache(c cache.SessionCache) {
	s.cache = c
}

// SetInsights enables the lead board and funnel counters
func (s *SessionService) SetInsights(board cache.LeadBoard, funnel cache.FunnelCache) {
	s.board = board
	s.funnel = funnel
}

// SetBroadcaster sets the broadcaster for lead feed events
func (s *SessionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Start creates a session and returns its first questions
func (s *SessionService) Start(ctx context.Context, req *model.StartRequest) (*model.StepResult, error) {
	form, err := s.loadForm(ctx, req.FormID)
	if err != nil {
		return nil, err
	}

	now := s.monitor.Now()
	clientID := req.ClientID
	if clientID == "" {
		clientID = form.ClientID
	}
	session := &model.Session{
		ID:               uuid.New().String(),
		FormID:           form.ID,
		ClientID:         clientID,
		StartedAt:        now,
		LastUpdated:      now,
		AskedQuestionIDs: []string{},
		Responses:        []model.Response{},
		Lead: model.LeadIntelligence{
			Status:             model.LeadUnknown,
			ScoreHistory:       []int{},
			RiskFactors:        []string{},
			PositiveIndicators: []string{},
		},
		Metadata: req.Metadata,
	}
	s.monitor.Reset(&session.Engagement, now)

	questions := s.selector.Select(ctx, form.Questions, nil, session.Step, 0, s.rephraseContext(session, form))
	var completion *model.Completion
	if len(questions) == 0 {
		if completion, err = s.router.CompleteGeneric(session, now); err != nil {
			return nil, err
		}
	} else {
		session.MarkAsked(questions)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.cacheSession(ctx, session)
	s.metrics.SessionStarted(form.ID)
	s.countFunnel(ctx, form.ID, model.FunnelStarted)
	if session.Completed {
		s.afterCompletion(ctx, session)
	}

	result := s.stepResult(session, form, questions, completion)
	if s.authSvc != nil {
		token, err := s.authSvc.GenerateSessionToken(session.ID, form.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		result.Token = token
	}

	s.logger.Info("session started", "session_id", session.ID, "form_id", form.ID, "questions", len(questions))
	return result, nil
}

// Step accepts a batch of answers and returns either the next questions or
// the completion payload
func (s *SessionService) Step(ctx context.Context, req *model.StepRequest) (*model.StepResult, error) {
	started := time.Now()
	defer s.metrics.StepProcessed(started)

	release, err := s.acquire(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer s.release(release, req.SessionID)

	session, err := s.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := session.EnsureMutable(); err != nil {
		return nil, err
	}
	form, err := s.loadForm(ctx, session.FormID)
	if err != nil {
		return nil, err
	}

	now := s.monitor.Now()
	check, err := s.monitor.Apply(session, now)
	if err != nil {
		return nil, err
	}
	if check.Terminal {
		s.logger.Info("session abandoned on return", "session_id", session.ID, "minutes_idle", check.MinutesIdle)
		completion, err := s.router.Abandon(session, now)
		if err != nil {
			return nil, err
		}
		if err := s.finish(ctx, session); err != nil {
			return nil, err
		}
		return s.stepResult(session, form, nil, completion), nil
	}

	processed, err := s.processor.Process(ctx, req.Responses, session, form, now)
	if err != nil {
		return nil, err
	}

	// Nothing accepted: present the same questions again without advancing
	if len(processed.Accepted) == 0 {
		if err := s.save(ctx, session); err != nil {
			return nil, err
		}
		result := s.stepResult(session, form, s.currentQuestions(session, form), nil)
		result.Rejected = processed.Rejected
		return result, nil
	}

	catalog := form.Catalog()
	score := s.scorer.Score(session.Responses, catalog, form.Rules)
	session.Lead = score.Intelligence()

	var (
		questions  []model.Question
		completion *model.Completion
	)
	switch score.Status {
	case model.LeadYes, model.LeadNo:
		completion, err = s.router.Route(ctx, score.Status, session, form, now)
	default:
		session.Step++
		questions = s.selector.Select(ctx, form.Questions, session.AskedQuestionIDs, session.Step,
			len(session.Responses), s.rephraseContext(session, form))
		switch {
		case len(questions) > 0:
			session.MarkAsked(questions)
		case score.Status == model.LeadMaybe:
			completion, err = s.router.Route(ctx, score.Status, session, form, now)
		default:
			completion, err = s.router.CompleteGeneric(session, now)
		}
	}
	if err != nil {
		return nil, err
	}

	if session.Completed {
		if err := s.finish(ctx, session); err != nil {
			return nil, err
		}
	} else {
		if err := s.save(ctx, session); err != nil {
			return nil, err
		}
		s.publishProgress(session)
	}
	// Only answers of a saved session reach the response store
	s.processor.Persist(processed.Accepted)
	s.countFunnel(ctx, form.ID, model.FunnelSteps)

	result := s.stepResult(session, form, questions, completion)
	result.Rejected = processed.Rejected
	s.logger.Info("step processed", "session_id", session.ID, "step", session.Step,
		"accepted", len(processed.Accepted), "rejected", len(processed.Rejected),
		"score", session.Lead.CurrentScore, "status", session.Lead.Status, "completed", session.Completed)
	return result, nil
}

// Snapshot returns the current status of a session without changing it
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	form, err := s.loadForm(ctx, session.FormID)
	if err != nil {
		return nil, err
	}

	status := session.Engagement.AbandonmentStatus
	risk := session.Engagement.AbandonmentRisk
	if !session.Completed {
		check := s.monitor.Check(session.Engagement.LastActivity, s.monitor.Now())
		if check.Status.Rank() > status.Rank() {
			status = check.Status
		}
		if check.Risk > risk {
			risk = check.Risk
		}
	}

	return &model.Snapshot{
		SessionID:         session.ID,
		FormID:            session.FormID,
		Step:              session.Step,
		Score:             session.Lead.FinalScore,
		LeadStatus:        session.Lead.Status,
		Completed:         session.Completed,
		CompletionType:    session.CompletionType,
		AbandonmentStatus: status,
		AbandonmentRisk:   risk,
		Progress:          progressOf(session, form),
	}, nil
}

// Complete finalizes a session on request. A resolved lead is routed by its
// status, an unresolved one gets the generic completion.
func (s *SessionService) Complete(ctx context.Context, sessionID string) (*model.Completion, error) {
	return s.terminate(ctx, sessionID, func(session *model.Session, form *model.Form, now time.Time) (*model.Completion, error) {
		if session.Lead.Status.Resolved() {
			return s.router.Route(ctx, session.Lead.Status, session, form, now)
		}
		return s.router.CompleteGeneric(session, now)
	})
}

// Abandon ends a session on the visitor's request
func (s *SessionService) Abandon(ctx context.Context, sessionID string) (*model.Completion, error) {
	return s.terminate(ctx, sessionID, func(session *model.Session, _ *model.Form, now time.Time) (*model.Completion, error) {
		return s.router.Abandon(session, now)
	})
}

func (s *SessionService) terminate(ctx context.Context, sessionID string, end func(*model.Session, *model.Form, time.Time) (*model.Completion, error)) (*model.Completion, error) {
	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer s.release(release, sessionID)

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.EnsureMutable(); err != nil {
		return nil, err
	}
	form, err := s.loadForm(ctx, session.FormID)
	if err != nil {
		return nil, err
	}

	completion, err := end(session, form, s.monitor.Now())
	if err != nil {
		return nil, err
	}
	if err := s.finish(ctx, session); err != nil {
		return nil, err
	}
	return completion, nil
}

// Sweep finalizes sessions that have been idle past the abandonment band.
// Busy sessions are skipped and picked up by the next sweep.
func (s *SessionService) Sweep(ctx context.Context) (int, error) {
	now := s.monitor.Now()
	stale, err := s.sessions.ListStale(ctx, now.Add(-highRiskMaxMinutes*time.Minute), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}

	abandoned := 0
	for _, candidate := range stale {
		ok, err := s.sweepOne(ctx, candidate.ID)
		if err != nil {
			if errors.Is(err, ErrSessionBusy) || errors.Is(err, ErrSessionCompleted) {
				continue
			}
			s.logger.Error("sweep failed", "session_id", candidate.ID, "error", err)
			continue
		}
		if ok {
			abandoned++
		}
	}
	if abandoned > 0 {
		s.logger.Info("sweep abandoned idle sessions", "count", abandoned)
	}
	return abandoned, nil
}

func (s *SessionService) sweepOne(ctx context.Context, sessionID string) (bool, error) {
	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer s.release(release, sessionID)

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	now := s.monitor.Now()
	check, err := s.monitor.Apply(session, now)
	if err != nil {
		return false, err
	}
	if !check.Terminal {
		return false, nil
	}
	if _, err := s.router.Abandon(session, now); err != nil {
		return false, err
	}
	return true, s.finish(ctx, session)
}

// RunSweeper calls Sweep every interval until ctx is cancelled
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

func (s *SessionService) acquire(ctx context.Context, sessionID string) (cache.Release, error) {
	release, err := s.locker.Acquire(ctx, sessionID)
	if errors.Is(err, cache.ErrLockBusy) {
		s.metrics.LockBusy()
		return nil, ErrSessionBusy
	}
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	return release, nil
}

func (s *SessionService) release(release cache.Release, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := release(ctx); err != nil {
		s.logger.Warn("failed to release session lock", "session_id", sessionID, "error", err)
	}
}

func (s *SessionService) load(ctx context.Context, sessionID string) (*model.Session, error) {
	if s.cache != nil {
		session, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			s.logger.Warn("session cache read failed", "session_id", sessionID, "error", err)
		}
		if session != nil {
			return session, nil
		}
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionService) loadForm(ctx context.Context, formID string) (*model.Form, error) {
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to load form: %w", err)
	}
	if form == nil {
		return nil, ErrFormNotFound
	}
	return form, nil
}

// save writes the session with the optimistic version check
func (s *SessionService) save(ctx context.Context, session *model.Session) error {
	if err := s.sessions.Update(ctx, session); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.dropCached(ctx, session.ID)
			return ErrSessionBusy
		}
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.cacheSession(ctx, session)
	return nil
}

// finish saves a terminal session and writes its outcome record
func (s *SessionService) finish(ctx context.Context, session *model.Session) error {
	if err := s.save(ctx, session); err != nil {
		return err
	}
	s.router.Record(ctx, session)
	s.afterCompletion(ctx, session)
	return nil
}

func (s *SessionService) afterCompletion(ctx context.Context, session *model.Session) {
	s.metrics.Completed(session.CompletionType)
	s.countFunnel(ctx, session.FormID, model.FunnelEventFor(session.CompletionType))

	if s.board != nil && session.CompletionType == model.CompletionQualified {
		if err := s.board.Record(ctx, session.ClientID, session.ID, session.Lead.FinalScore); err != nil {
			s.logger.Warn("lead board update failed", "session_id", session.ID, "error", err)
		}
	}
	if s.broadcaster != nil && session.ClientID != "" {
		s.broadcaster.BroadcastToClient(session.ClientID, EventLeadCompleted, s.leadEvent(session))
	}
	s.logger.Info("session completed", "session_id", session.ID, "completion_type", session.CompletionType,
		"lead_status", session.Lead.Status, "final_score", session.Lead.FinalScore)
}

func (s *SessionService) publishProgress(session *model.Session) {
	if s.broadcaster != nil && session.ClientID != "" {
		s.broadcaster.BroadcastToClient(session.ClientID, EventLeadProgress, s.leadEvent(session))
	}
}

func (s *SessionService) leadEvent(session *model.Session) LeadEvent {
	return LeadEvent{
		SessionID:      session.ID,
		FormID:         session.FormID,
		Step:           session.Step,
		Score:          session.Lead.FinalScore,
		LeadStatus:     string(session.Lead.Status),
		CompletionType: string(session.CompletionType),
		Message:        session.CompletionMessage,
	}
}

func (s *SessionService) countFunnel(ctx context.Context, formID string, event model.FunnelEvent) {
	if s.funnel == nil {
		return
	}
	if err := s.funnel.Incr(ctx, formID, event); err != nil {
		s.logger.Warn("funnel update failed", "form_id", formID, "event", event, "error", err)
	}
}

func (s *SessionService) cacheSession(ctx context.Context, session *model.Session) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, session); err != nil {
		s.logger.Warn("session cache write failed", "session_id", session.ID, "error", err)
	}
}

func (s *SessionService) dropCached(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("session cache delete failed", "session_id", sessionID, "error", err)
	}
}

func (s *SessionService) rephraseContext(session *model.Session, form *model.Form) RephraseContext {
	return RephraseContext{
		BusinessName: form.BusinessName,
		FormTitle:    form.Title,
		Step:         session.Step,
		Answers:      BuildAnswerContext(session, form.Catalog()),
	}
}

// currentQuestions returns the questions of the latest step that are still unanswered
func (s *SessionService) currentQuestions(session *model.Session, form *model.Form) []model.Question {
	var out []model.Question
	for _, id := range session.CurrentQuestions {
		if session.HasAnswered(id) {
			continue
		}
		if q, ok := form.Question(id); ok {
			q.RephrasedText = session.CurrentPhrasings[id]
			out = append(out, q)
		}
	}
	return out
}

func (s *SessionService) stepResult(session *model.Session, form *model.Form, questions []model.Question, completion *model.Completion) *model.StepResult {
	result := &model.StepResult{
		SessionID: session.ID,
		Step:      session.Step,
		Questions: make([]model.QuestionView, 0, len(questions)),
		Progress:  progressOf(session, form),
		Completed: session.Completed,
	}
	if session.Completed {
		if completion == nil {
			completion = completionOf(session)
		}
		result.Completion = completion
		return result
	}
	for _, q := range questions {
		result.Questions = append(result.Questions, q.View())
	}
	result.Headline = headlineFor(session.Step, questions)
	result.Motivation = motivationFor(result.Progress)
	return result
}

func progressOf(session *model.Session, form *model.Form) model.Progress {
	p := model.Progress{Answered: len(session.Responses), Total: len(form.Questions)}
	if p.Total > 0 {
		p.Percent = p.Answered * 100 / p.Total
	}
	if session.Completed {
		p.Percent = 100
	}
	return p
}

func headlineFor(step int, questions []model.Question) string {
	if step == 0 {
		return "Let's get started"
	}
	if len(questions) == 0 {
		return ""
	}
	switch questions[0].GroupKey() {
	case model.CategoryContact:
		return "How can we reach you?"
	case model.CategoryQualification:
		return "A few details about your situation"
	case model.CategoryService:
		return "Tell us what you're looking for"
	default:
		return "Almost there"
	}
}

func motivationFor(p model.Progress) string {
	switch {
	case p.Percent < 34:
		return "This only takes a couple of minutes."
	case p.Percent < 67:
		return "You're making great progress."
	default:
		return "Just " + remainingPhrase(p) + " to go."
	}
}

func remainingPhrase(p model.Progress) string {
	left := p.Total - p.Answered
	if left <= 1 {
		return "one more question"
	}
	return "a few more questions"
}
