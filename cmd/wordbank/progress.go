package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newProgressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show learning progress for the current content",
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

			counters, err := s.Counters(ctx)
			if err != nil {
				return fmt.Errorf("s.Counters() > %w", err)
			}

			fmt.Printf("Content: %s\n", s.ContentID())
			fmt.Printf("  Studied:    %d / %d (%d%%)\n", counters.Studied, counters.Total, counters.Percent)
			fmt.Printf("  Memorizing: %d (%d ready for the quiz)\n", counters.Memorizing, counters.QMemoryEligible)
			fmt.Printf("  Short-term: %d\n", counters.ShortTerm)
			fmt.Printf("  Long-term:  %d (%d due today)\n", counters.LongTerm, counters.LongTermDue)
			fmt.Printf("  Difficult:  %d\n", counters.Difficult)
			return nil
		},
	}
}
