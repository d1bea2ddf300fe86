package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"leadflow/internal/config"
	"leadflow/internal/service"
)

func seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import a YAML question catalog into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log)

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read catalog: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, err := openStore(ctx, cfg.Store, logger)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())

			forms, err := service.NewFormService(store.Forms).Import(ctx, data)
			if err != nil {
				return err
			}
			for _, f := range forms {
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s): %d questions\n", f.ID, f.ClientID, len(f.Questions))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
