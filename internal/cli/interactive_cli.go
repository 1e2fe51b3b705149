// Package cli contains the interactive terminal front ends for a study
// session.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
)

// errEnd ends the interactive loop without an error.
var errEnd = errors.New("end")

// InteractiveCLI contains shared logic for interactive study CLIs.
type InteractiveCLI struct {
	stdinReader  *bufio.Reader
	stdoutWriter io.Writer
	bold         *color.Color
	italic       *color.Color
}

// Option overrides the CLI's streams, used by tests to script a run.
type Option func(*InteractiveCLI)

// WithInput replaces stdin.
func WithInput(r io.Reader) Option {
	return func(cli *InteractiveCLI) { cli.stdinReader = bufio.NewReader(r) }
}

// WithOutput replaces stdout.
func WithOutput(w io.Writer) Option {
	return func(cli *InteractiveCLI) { cli.stdoutWriter = w }
}

func newInteractiveCLI(opts ...Option) *InteractiveCLI {
	cli := &InteractiveCLI{
		stdinReader:  bufio.NewReader(os.Stdin),
		stdoutWriter: os.Stdout,
		bold:         color.New(color.Bold),
		italic:       color.New(color.Italic),
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Session is one iteration of an interactive run.
type Session interface {
	Session(context context.Context) error
}

// Run drives session until it ends or an interrupt arrives.
func (cli *InteractiveCLI) Run(ctx context.Context, session Session) error {
	ctx, cancel := signal.NotifyContext(
		ctx,
		os.Interrupt,
	)
	defer cancel()

	errCh := make(chan error)
	go func() {
		defer close(errCh)

	LOOP:
		for {
			select {
			case <-ctx.Done():
				break LOOP
			default:
			}

			if err := session.Session(ctx); err != nil {
				if errors.Is(err, errEnd) {
					break
				}
				errCh <- err
				break
			}
		}
	}()
	select {
	case <-ctx.Done():
		fmt.Fprintln(cli.stdoutWriter, "Received interrupt signal, exiting...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error: %w", err)
		}
	}
	return nil
}

// readLine reads one trimmed input line. A closed stdin ends the run.
func (cli *InteractiveCLI) readLine() (string, error) {
	line, err := cli.stdinReader.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			return "", errEnd
		}
		return "", fmt.Errorf("error reading input: %w", err)
	}
	return line, nil
}
