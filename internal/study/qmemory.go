package study

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/dhlim/wordbank/internal/clock"
	"github.com/dhlim/wordbank/internal/store"
)

// QVariant selects which tier a Q-Memory run quizzes.
type QVariant string

const (
	QGeneral   QVariant = "general"
	QShortTerm QVariant = "short-term"
	QLongTerm  QVariant = "long-term"
)

// Answer windows. Entry type 3 grants the longer window.
const (
	answerWindowDefault = 2000 * time.Millisecond
	answerWindowType3   = 4000 * time.Millisecond
)

// Flip delays before the next card.
const (
	flipDelayCorrect = 1000 * time.Millisecond
	flipDelayWrong   = 2000 * time.Millisecond
)

// Question is the front of the current card: the word plus two choices, one
// of which is the first syllable of the meaning.
type Question struct {
	Word    store.Word
	Choices [2]string

	correct int
}

// Outcome is the back of the card after a choice or a timeout.
type Outcome struct {
	Word      store.Word
	Correct   bool
	TimedOut  bool
	Answer    string
	FlipDelay time.Duration
}

// QMemory runs the timed two-choice recall quiz over one tier. Each card arms
// an answer-window timer; letting it lapse counts as a wrong answer.
type QMemory struct {
	base
	variant      QVariant
	answerWindow time.Duration
	rng          *rand.Rand

	onFlip func(Outcome)

	// guarded by base.mu
	question   *Question
	timer      clock.Timer
	generation int
	correct    int
	answered   int
}

// StartQMemory loads the eligible words for variant. entryType comes from the
// launch URL; "3" doubles the answer window.
func StartQMemory(ctx context.Context, deps Deps, variant QVariant, entryType string, rng *rand.Rand) (*QMemory, error) {
	if deps.Blocked != nil && deps.Blocked() {
		return nil, ErrSessionBlocked
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(deps.Clock.Now().UnixNano()))
	}

	words, err := qmemoryWords(ctx, deps, variant)
	if err != nil {
		return nil, err
	}

	window := answerWindowDefault
	if entryType == "3" {
		window = answerWindowType3
	}
	return &QMemory{
		base:         newBase(deps, words),
		variant:      variant,
		answerWindow: window,
		rng:          rng,
	}, nil
}

func qmemoryWords(ctx context.Context, deps Deps, variant QVariant) ([]store.Word, error) {
	switch variant {
	case QGeneral:
		words, err := deps.Store.GetWords(ctx, store.Filter{
			"is_studied": store.FlagOn,
			"known2":     store.TierMemorizing,
			"status":     store.FlagOff,
		}, 0, nil)
		if err != nil {
			return nil, fmt.Errorf("st.GetWords(q-memory general) > %w", err)
		}
		return words, nil

	case QShortTerm:
		words, err := deps.Store.GetWords(ctx, store.Filter{
			"is_studied": store.FlagOn,
			"known2":     store.TierShortTerm,
		}, 0, nil)
		if err != nil {
			return nil, fmt.Errorf("st.GetWords(q-memory short-term) > %w", err)
		}
		return words, nil

	case QLongTerm:
		all, err := deps.Store.GetWords(ctx, store.Filter{
			"is_studied": store.FlagOn,
			"known2":     store.TierLongTerm,
		}, 0, nil)
		if err != nil {
			return nil, fmt.Errorf("st.GetWords(q-memory long-term) > %w", err)
		}
		// Due means strictly before today's civil midnight; a word confirmed
		// earlier today is not asked again.
		todayStart := deps.Clock.TodayStartISO()
		due := make([]store.Word, 0, len(all))
		for _, w := range all {
			if w.StudiedDate < todayStart {
				due = append(due, w)
			}
		}
		return due, nil

	default:
		return nil, fmt.Errorf("unknown q-memory variant %q", variant)
	}
}

// SetOnFlip registers the callback run when a card flips, whether by choice
// or by timeout. Must be set before Present.
func (q *QMemory) SetOnFlip(fn func(Outcome)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFlip = fn
}

// Present shows the current card front and arms the answer-window timer.
// Returns false when the run is over.
func (q *QMemory) Present() (Question, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed || q.idx >= len(q.words) {
		return Question{}, false
	}
	if q.question != nil {
		return *q.question, true
	}

	w := q.words[q.idx]
	choices, correct := buildChoices(q.rng, w.Meaning)
	q.question = &Question{Word: w, Choices: choices, correct: correct}

	q.generation++
	gen := q.generation
	q.timer = q.deps.Clock.AfterFunc(q.answerWindow, func() { q.expire(gen) })
	return *q.question, true
}

// Choose answers the current card with choice index i. The timer is stopped;
// a choice landing after the timeout already flipped the card is dropped.
func (q *QMemory) Choose(ctx context.Context, i int) error {
	if q.deps.Blocked != nil && q.deps.Blocked() {
		return ErrSessionBlocked
	}

	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return ErrModeDestroyed
	}
	if q.question == nil {
		q.mu.Unlock()
		return ErrNoCurrentWord
	}
	if q.handling {
		q.mu.Unlock()
		return ErrAnswerInProgress
	}
	q.setHandlingLocked()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	question := *q.question
	q.mu.Unlock()

	correct := i == question.correct
	return q.flip(ctx, question, correct, false)
}

// expire is the timeout path: the lapsed window counts as a wrong answer.
func (q *QMemory) expire(gen int) {
	q.mu.Lock()
	if q.destroyed || q.question == nil || q.handling || gen != q.generation {
		q.mu.Unlock()
		return
	}
	q.setHandlingLocked()
	q.timer = nil
	question := *q.question
	q.mu.Unlock()

	if err := q.flip(context.Background(), question, false, true); err != nil {
		slog.Error("q-memory timeout transition failed", "word", question.Word.ID, "error", err)
	}
}

// flip persists the tier transition, updates the tally and reports the back
// of the card. The latch stays held until the mutation is durable.
func (q *QMemory) flip(ctx context.Context, question Question, correct, timedOut bool) error {
	w := question.Word
	patch := q.transition(w, correct)

	if err := q.enqueueAndWait(ctx, Mutation{WordID: w.ID, Patch: patch, Mirror: true}); err != nil {
		q.releaseLatch()
		return err
	}

	delay := flipDelayCorrect
	if !correct {
		delay = flipDelayWrong
	}

	q.mu.Lock()
	q.clearHandlingLocked()
	q.answered++
	if correct {
		q.correct++
		q.known++
	} else {
		q.unknown++
	}
	q.question = nil
	q.idx++
	onFlip := q.onFlip
	q.mu.Unlock()

	if onFlip != nil {
		onFlip(Outcome{
			Word:      w,
			Correct:   correct,
			TimedOut:  timedOut,
			Answer:    question.Choices[question.correct],
			FlipDelay: delay,
		})
	}
	return nil
}

// transition maps (variant, verdict) to the word patch.
func (q *QMemory) transition(w store.Word, correct bool) map[string]any {
	patch := map[string]any{}
	switch q.variant {
	case QGeneral:
		if correct {
			patch["status"] = store.FlagOn
		} else {
			patch["difficult"] = w.Difficult + 1
		}
	case QShortTerm:
		if correct {
			patch["known2"] = store.TierLongTerm
			patch["studied_date"] = q.deps.Clock.NowISO()
		} else {
			patch["known2"] = store.TierMemorizing
			patch["difficult"] = w.Difficult + 1
		}
	case QLongTerm:
		if correct {
			// Re-confirm only; the word stays long-term.
			patch["studied_date"] = q.deps.Clock.NowISO()
		} else {
			patch["known2"] = store.TierShortTerm
			patch["difficult"] = w.Difficult + 1
		}
	}
	return patch
}

// Score is the percentage of correct flips so far.
func (q *QMemory) Score() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.answered == 0 {
		return 0
	}
	return int(math.Round(float64(q.correct) / float64(q.answered) * 100))
}

// Destroy cancels the armed timer, flushes pending writes and retires the run.
func (q *QMemory) Destroy(ctx context.Context) error {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.question = nil
	q.mu.Unlock()
	return q.destroy(ctx)
}
