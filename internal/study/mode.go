package study

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dhlim/wordbank/internal/clock"
	"github.com/dhlim/wordbank/internal/loader"
	"github.com/dhlim/wordbank/internal/store"
)

var (
	// ErrAnswerInProgress is returned while a previous answer is still being
	// persisted. Callers drop the input and wait.
	ErrAnswerInProgress = errors.New("answer already in progress")
	// ErrModeDestroyed is returned for any interaction after Destroy.
	ErrModeDestroyed = errors.New("mode is destroyed")
	// ErrSessionBlocked is returned when the access token expired mid-session.
	ErrSessionBlocked = errors.New("session is blocked")
	// ErrNoCurrentWord is returned when the deck is exhausted.
	ErrNoCurrentWord = errors.New("no current word")
)

// Stats is the running tally a mode exposes to the presentation.
type Stats struct {
	KnownCount     int `json:"knownCount"`
	UnknownCount   int `json:"unknownCount"`
	WordsStudied   int `json:"wordsStudied"`
	RemainingWords int `json:"remainingWords"`
}

// Deps carries what every mode needs. Blocked, when non-nil, is consulted
// before each interaction so an expired token stops the session immediately.
type Deps struct {
	Store   *store.Store
	Clock   clock.Clock
	Queue   *SaveQueue
	Loader  *loader.Loader
	Phone   string
	Blocked func() bool
}

// Mode is the common surface the session holds a running mode through.
type Mode interface {
	Stats() Stats
	Destroy(ctx context.Context) error
}

// base holds the word deck and the answer latch shared by all modes.
type base struct {
	deps  Deps
	words []store.Word

	mu        sync.Mutex
	idx       int
	known     int
	unknown   int
	handling  bool
	destroyed bool
	// handlingDone is non-nil while an answer holds the latch and is closed
	// when it releases, so destroy can await an in-flight persist.
	handlingDone chan struct{}
}

func newBase(deps Deps, words []store.Word) base {
	return base{deps: deps, words: words}
}

// Current returns the word being presented, or false when the deck is done.
func (b *base) Current() (store.Word, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed || b.idx >= len(b.words) {
		return store.Word{}, false
	}
	return b.words[b.idx], true
}

// Stats returns the running tally.
func (b *base) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		KnownCount:     b.known,
		UnknownCount:   b.unknown,
		WordsStudied:   b.known + b.unknown,
		RemainingWords: len(b.words) - b.idx,
	}
}

// beginAnswer acquires the answer latch and returns the current word. The
// latch is held until endAnswer, so a double-tap cannot double-apply.
func (b *base) beginAnswer() (store.Word, error) {
	if b.deps.Blocked != nil && b.deps.Blocked() {
		return store.Word{}, ErrSessionBlocked
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return store.Word{}, ErrModeDestroyed
	}
	if b.handling {
		return store.Word{}, ErrAnswerInProgress
	}
	if b.idx >= len(b.words) {
		return store.Word{}, ErrNoCurrentWord
	}
	b.setHandlingLocked()
	return b.words[b.idx], nil
}

func (b *base) setHandlingLocked() {
	b.handling = true
	b.handlingDone = make(chan struct{})
}

func (b *base) clearHandlingLocked() {
	b.handling = false
	if b.handlingDone != nil {
		close(b.handlingDone)
		b.handlingDone = nil
	}
}

// endAnswer releases the latch, records the tally and advances the deck.
func (b *base) endAnswer(know bool, advance bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearHandlingLocked()
	if know {
		b.known++
	} else {
		b.unknown++
	}
	if advance {
		b.idx++
	}
}

// releaseLatch releases the latch without recording an answer, for error paths.
func (b *base) releaseLatch() {
	b.mu.Lock()
	b.clearHandlingLocked()
	b.mu.Unlock()
}

// destroy flushes the save queue; pending writes must be durable before the
// mode reports itself stopped. An answer holding the latch, such as a timeout
// flip on the timer goroutine, finishes persisting first so the flush barrier
// covers it.
func (b *base) destroy(ctx context.Context) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return nil
	}
	b.destroyed = true
	for b.handling {
		done := b.handlingDone
		b.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		b.mu.Lock()
	}
	b.mu.Unlock()

	if err := b.deps.Queue.Flush(ctx); err != nil {
		return fmt.Errorf("queue.Flush > %w", err)
	}
	return nil
}

// enqueueAndWait submits a mutation and blocks until it is durable.
func (b *base) enqueueAndWait(ctx context.Context, m Mutation) error {
	ack, err := b.deps.Queue.Enqueue(m)
	if err != nil {
		return fmt.Errorf("queue.Enqueue > %w", err)
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyLocal mirrors a persisted patch into the in-memory deck copy.
func (b *base) applyLocal(id string, fn func(w *store.Word)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.words {
		if b.words[i].ID == id {
			fn(&b.words[i])
			return
		}
	}
}

// studyCount reads the per-phone issued-words frontier, zero when unset.
func studyCount(ctx context.Context, st *store.Store) (int, error) {
	raw, ok, err := st.GetSetting(ctx, store.SettingStudyCount)
	if err != nil {
		return 0, fmt.Errorf("st.GetSetting(studyCount) > %w", err)
	}
	if !ok {
		return 0, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return count, nil
}
