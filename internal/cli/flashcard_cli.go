package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/dhlim/wordbank/internal/session"
	"github.com/dhlim/wordbank/internal/study"
)

type flashcardPhase int

const (
	phaseNew flashcardPhase = iota
	phaseMemorizing
)

// FlashcardCLI runs the know/don't-know flashcard session: a batch of new
// words first, then the memorizing-tier review.
type FlashcardCLI struct {
	*InteractiveCLI
	sess *session.Session

	phase   flashcardPhase
	newMode *study.NewMode
	memMode *study.MemorizingMode
}

// NewFlashcardCLI creates the flashcard CLI over a started session.
func NewFlashcardCLI(sess *session.Session, opts ...Option) *FlashcardCLI {
	return &FlashcardCLI{
		InteractiveCLI: newInteractiveCLI(opts...),
		sess:           sess,
	}
}

func (r *FlashcardCLI) Session(ctx context.Context) error {
	switch r.phase {
	case phaseNew:
		return r.newSession(ctx)
	default:
		return r.memorizingSession(ctx)
	}
}

func (r *FlashcardCLI) newSession(ctx context.Context) error {
	if r.newMode == nil {
		mode, err := r.sess.StartNewMode(ctx)
		if err != nil {
			return fmt.Errorf("sess.StartNewMode() > %w", err)
		}
		r.newMode = mode
		fmt.Fprintf(r.stdoutWriter, "New words: %d\n\n", mode.Stats().RemainingWords)
	}

	w, ok := r.newMode.Current()
	if !ok {
		r.printStats("New words done", r.newMode.Stats())
		r.phase = phaseMemorizing
		return nil
	}

	r.printFront(w.Word, w.Pronunciation)
	fmt.Fprintf(r.stdoutWriter, "Meaning: %s\n", r.italic.Sprintf("%s", w.Meaning))

	know, err := r.promptKnow()
	if err != nil {
		return err
	}
	if err := r.newMode.Answer(ctx, know); err != nil {
		return fmt.Errorf("newMode.Answer() > %w", err)
	}
	return nil
}

func (r *FlashcardCLI) memorizingSession(ctx context.Context) error {
	if r.memMode == nil {
		mode, err := r.sess.StartMemorizingMode(ctx)
		if err != nil {
			return fmt.Errorf("sess.StartMemorizingMode() > %w", err)
		}
		r.memMode = mode
		fmt.Fprintf(r.stdoutWriter, "Memorizing review: %d\n\n", mode.Stats().RemainingWords)
	}

	w, ok := r.memMode.Current()
	if !ok {
		r.printStats("Session finished", r.memMode.Stats())
		if err := r.sess.DestroyMode(ctx); err != nil {
			return fmt.Errorf("sess.DestroyMode() > %w", err)
		}
		return errEnd
	}

	r.printFront(w.Word, w.Pronunciation)
	fmt.Fprintf(r.stdoutWriter, "Meaning: %s\n", r.italic.Sprintf("%s", w.Meaning))

	if r.memMode.FirstEncounter() {
		fmt.Fprint(r.stdoutWriter, "First encounter, press Enter to continue: ")
		if _, err := r.readLine(); err != nil {
			return err
		}
		if err := r.memMode.Next(ctx); err != nil {
			return fmt.Errorf("memMode.Next() > %w", err)
		}
		fmt.Fprintln(r.stdoutWriter)
		return nil
	}

	know, err := r.promptKnow()
	if err != nil {
		return err
	}
	if err := r.memMode.Answer(ctx, know); err != nil {
		return fmt.Errorf("memMode.Answer() > %w", err)
	}
	return nil
}

func (r *FlashcardCLI) printFront(word, pronunciation string) {
	_, _ = r.bold.Fprintf(r.stdoutWriter, "%s", word)
	if pronunciation != "" {
		fmt.Fprintf(r.stdoutWriter, " [%s]", pronunciation)
	}
	fmt.Fprintln(r.stdoutWriter)
}

// promptKnow loops until the user gives a usable answer.
func (r *FlashcardCLI) promptKnow() (bool, error) {
	for {
		fmt.Fprint(r.stdoutWriter, "Did you know it? [y/n/q]: ")
		line, err := r.readLine()
		if err != nil {
			return false, err
		}
		switch line {
		case "y", "Y":
			fmt.Fprint(r.stdoutWriter, "✅ ")
			color.New(color.FgGreen).Fprintln(r.stdoutWriter, "Marked as known")
			fmt.Fprintln(r.stdoutWriter)
			return true, nil
		case "n", "N":
			fmt.Fprint(r.stdoutWriter, "❌ ")
			color.New(color.FgRed).Fprintln(r.stdoutWriter, "Back to memorizing")
			fmt.Fprintln(r.stdoutWriter)
			return false, nil
		case "q", "Q":
			return false, errEnd
		default:
			fmt.Fprintf(r.stdoutWriter, "Unknown input %q\n", line)
		}
	}
}

func (r *FlashcardCLI) printStats(title string, stats study.Stats) {
	fmt.Fprintf(r.stdoutWriter, "\n%s: %d studied, %d known, %d unknown\n\n",
		title, stats.WordsStudied, stats.KnownCount, stats.UnknownCount)
}
