package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhlim/wordbank/internal/session"
)

func newSyncCommand() *cobra.Command {
	var wait time.Duration

	command := &cobra.Command{
		Use:   "sync",
		Short: "Show the state of the background answer sync",
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

			if wait > 0 {
				waitCtx, cancel := context.WithTimeout(ctx, wait)
				defer cancel()
				if err := waitForDrain(waitCtx, s); err != nil {
					return err
				}
			}

			status, err := s.SyncStatus(ctx)
			if err != nil {
				return fmt.Errorf("s.SyncStatus() > %w", err)
			}
			fmt.Printf("Online: %t\n", status.Online)
			fmt.Printf("Queued: %d\n", status.Depth)
			fmt.Printf("Failed: %d\n", status.Failed)
			return nil
		},
	}
	command.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the queue to drain before reporting")
	return command
}

// waitForDrain polls until the queue is empty or the context expires. A
// timeout is not an error; the command still reports whatever is left.
func waitForDrain(ctx context.Context, s *session.Session) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		status, err := s.SyncStatus(ctx)
		if err != nil {
			return fmt.Errorf("s.SyncStatus() > %w", err)
		}
		if status.Depth == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			fmt.Println("Timed out waiting for the queue to drain")
			return nil
		case <-ticker.C:
		}
	}
}
