package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhlim/wordbank/internal/cli"
	"github.com/dhlim/wordbank/internal/study"
)

func newStudyCommand() *cobra.Command {
	studyCommand := &cobra.Command{
		Use:   "study",
		Short: "Interactive study sessions",
	}

	studyCommand.AddCommand(newStudyFlashcardCommand())
	studyCommand.AddCommand(newStudyQMemoryCommand())
	studyCommand.AddCommand(newStudyDifficultCommand())

	return studyCommand
}

func newStudyFlashcardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flashcard",
		Short: "Flashcard session: a batch of new words, then the memorizing review",
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

			fmt.Printf("Studying %q as %s\n\n", s.ContentID(), s.Phone())
			flashcardCLI := cli.NewFlashcardCLI(s)
			return flashcardCLI.Run(ctx, flashcardCLI)
		},
	}
}

func newStudyQMemoryCommand() *cobra.Command {
	command := &cobra.Command{
		Use:       "qmemory [general|short-term|long-term]",
		Short:     "Timed two-choice recall quiz over one memory tier",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(study.QGeneral), string(study.QShortTerm), string(study.QLongTerm)},
		RunE: func(cmd *cobra.Command, args []string) error {
			variant := study.QGeneral
			if len(args) == 1 {
				variant = study.QVariant(args[0])
			}

			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, params, err := startSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close(context.Background()) }()

			qmemoryCLI := cli.NewQMemoryCLI(s, variant, params.Type)
			return qmemoryCLI.Run(ctx, qmemoryCLI)
		},
	}
	return command
}

func newStudyDifficultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "difficult",
		Short: "Browse the words missed more than twice, hardest first",
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

			review, err := s.StartDifficultReview(ctx)
			if err != nil {
				return fmt.Errorf("s.StartDifficultReview() > %w", err)
			}
			defer func() { _ = s.DestroyMode(context.Background()) }()

			words := review.Words()
			if len(words) == 0 {
				fmt.Println("No difficult words, keep going.")
				return nil
			}
			fmt.Printf("%d difficult words:\n\n", len(words))
			for _, w := range words {
				fmt.Printf("%3d misses  %s", w.Difficult, w.Word)
				if w.Pronunciation != "" {
					fmt.Printf(" [%s]", w.Pronunciation)
				}
				fmt.Printf("  %s\n", w.Meaning)
			}
			return nil
		},
	}
}
