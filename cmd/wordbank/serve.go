package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhlim/wordbank/internal/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only progress and sync status endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, _, err := startSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close(context.Background()) }()

			httpServer := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
				Handler: server.New(s, cfg.Server.AllowedOrigins),
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			slog.Info("serving status endpoints", "addr", httpServer.Addr, "content", s.ContentID())
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("httpServer.ListenAndServe() > %w", err)
			}
			return nil
		},
	}
}
