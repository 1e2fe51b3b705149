package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configFile string
	debugMode  bool

	entryURL string
	rawToken string
	contents string
)

func main() {
	rootCommand := &cobra.Command{
		Use:          "wordbank",
		Short:        "Offline-first vocabulary study sessions backed by Airtable",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(debugMode)
		},
	}
	addLaunchFlags(rootCommand.PersistentFlags())

	rootCommand.AddCommand(newStudyCommand())
	rootCommand.AddCommand(newLoadCommand())
	rootCommand.AddCommand(newProgressCommand())
	rootCommand.AddCommand(newSyncCommand())
	rootCommand.AddCommand(newServeCommand())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCommand.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func addLaunchFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	flags.StringVar(&entryURL, "entry-url", "", "Launch URL carrying the token and content selection")
	flags.StringVar(&rawToken, "token", "", "Access token (or set WORDBANK_TOKEN)")
	flags.StringVar(&contents, "contents", "", "Content to study; defaults to the last one used")
}

func setupLogger(debugMode bool) {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
