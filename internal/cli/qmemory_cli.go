package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/dhlim/wordbank/internal/session"
	"github.com/dhlim/wordbank/internal/study"
)

// QMemoryCLI runs a timed two-choice recall quiz over one memory tier.
type QMemoryCLI struct {
	*InteractiveCLI
	sess      *session.Session
	variant   study.QVariant
	entryType string

	// sleep is replaceable so tests skip the flip delays.
	sleep func(time.Duration)

	mode *study.QMemory
}

// NewQMemoryCLI creates the Q-Memory CLI over a started session.
func NewQMemoryCLI(sess *session.Session, variant study.QVariant, entryType string, opts ...Option) *QMemoryCLI {
	return &QMemoryCLI{
		InteractiveCLI: newInteractiveCLI(opts...),
		sess:           sess,
		variant:        variant,
		entryType:      entryType,
		sleep:          time.Sleep,
	}
}

func (r *QMemoryCLI) Session(ctx context.Context) error {
	if r.mode == nil {
		mode, err := r.sess.StartQMemoryMode(ctx, r.variant, r.entryType)
		if err != nil {
			return fmt.Errorf("sess.StartQMemoryMode() > %w", err)
		}
		r.mode = mode
		r.mode.SetOnFlip(r.printFlip)
		fmt.Fprintf(r.stdoutWriter, "Q-Memory (%s): %d words\n\n", r.variant, mode.Stats().RemainingWords)
	}

	question, ok := r.mode.Present()
	if !ok {
		fmt.Fprintf(r.stdoutWriter, "\nScore: %d%%\n", r.mode.Score())
		if err := r.sess.DestroyMode(ctx); err != nil {
			return fmt.Errorf("sess.DestroyMode() > %w", err)
		}
		return errEnd
	}

	_, _ = r.bold.Fprintf(r.stdoutWriter, "%s\n", question.Word.Word)
	fmt.Fprintf(r.stdoutWriter, "First syllable of the meaning?  [1] %s  [2] %s\n",
		question.Choices[0], question.Choices[1])
	fmt.Fprint(r.stdoutWriter, "> ")

	line, err := r.readLine()
	if err != nil {
		return err
	}

	var idx int
	switch line {
	case "1":
		idx = 0
	case "2":
		idx = 1
	case "q", "Q":
		if err := r.sess.DestroyMode(ctx); err != nil {
			return fmt.Errorf("sess.DestroyMode() > %w", err)
		}
		return errEnd
	default:
		fmt.Fprintf(r.stdoutWriter, "Unknown input %q\n", line)
		return nil
	}

	if err := r.mode.Choose(ctx, idx); err != nil {
		// The window lapsed while the prompt was waiting; the timeout has
		// already flipped the card.
		if errors.Is(err, study.ErrNoCurrentWord) {
			return nil
		}
		return fmt.Errorf("mode.Choose() > %w", err)
	}
	return nil
}

// printFlip renders the back of the card. It also runs for timeouts, so it is
// registered as the mode's flip callback instead of living in Session.
func (r *QMemoryCLI) printFlip(outcome study.Outcome) {
	if outcome.Correct {
		fmt.Fprint(r.stdoutWriter, "✅ ")
		color.New(color.FgGreen).Fprintf(r.stdoutWriter, "Correct, %s starts with %q\n",
			outcome.Word.Meaning, outcome.Answer)
	} else {
		if outcome.TimedOut {
			fmt.Fprintln(r.stdoutWriter, "⏰ Time is up")
		}
		fmt.Fprint(r.stdoutWriter, "❌ ")
		color.New(color.FgRed).Fprintf(r.stdoutWriter, "The meaning is %s, starting with %q\n",
			r.italic.Sprintf("%s", outcome.Word.Meaning), outcome.Answer)
	}
	fmt.Fprintln(r.stdoutWriter)
	r.sleep(outcome.FlipDelay)
}
