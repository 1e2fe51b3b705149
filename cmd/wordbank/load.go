package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhlim/wordbank/internal/loader"
)

func newLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Download the word list for the current content",
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

			err = s.EnsureLoaded(ctx, func(p loader.Progress) {
				fmt.Printf("[%3d%%] %s", p.Percent, p.Stage)
				if p.Message != "" {
					fmt.Printf(": %s", p.Message)
				}
				fmt.Println()
			})
			if err != nil {
				return fmt.Errorf("s.EnsureLoaded() > %w", err)
			}

			count, err := s.Store().CountWords(ctx, nil)
			if err != nil {
				return fmt.Errorf("s.Store().CountWords() > %w", err)
			}
			fmt.Printf("\n%q holds %d words\n", s.ContentID(), count)
			return nil
		},
	}
}
