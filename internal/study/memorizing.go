package study

import (
	"context"
	"fmt"

	"github.com/dhlim/wordbank/internal/store"
)

// MemorizingMode reviews words sitting in the memorizing tier, oldest studied
// first. A word on its first memorizing pass is presented read-only with a
// Next control; answering starts on the second encounter.
type MemorizingMode struct {
	base
}

// StartMemorizing loads every memorizing-tier word.
func StartMemorizing(ctx context.Context, deps Deps) (*MemorizingMode, error) {
	if deps.Blocked != nil && deps.Blocked() {
		return nil, ErrSessionBlocked
	}
	words, err := deps.Store.GetWords(ctx, store.Filter{
		"is_studied": store.FlagOn,
		"known2":     store.TierMemorizing,
	}, 0, &store.Sort{Column: "studied_date"})
	if err != nil {
		return nil, fmt.Errorf("st.GetWords(memorizing) > %w", err)
	}
	return &MemorizingMode{base: newBase(deps, words)}, nil
}

// FirstEncounter reports whether the current word only shows the Next control.
func (m *MemorizingMode) FirstEncounter() bool {
	w, ok := m.Current()
	return ok && w.FirstTimeInMemorizing
}

// Next acknowledges a first-encounter word: the flag flips off and persists,
// the word stays in memorizing and comes back answerable next session.
func (m *MemorizingMode) Next(ctx context.Context) error {
	w, err := m.beginAnswer()
	if err != nil {
		return err
	}
	if !w.FirstTimeInMemorizing {
		m.releaseLatch()
		return fmt.Errorf("word %s is past its first encounter", w.ID)
	}

	mutation := Mutation{
		WordID: w.ID,
		Patch:  map[string]any{"first_time_in_memorizing": false},
		Mirror: true,
	}
	if err := m.enqueueAndWait(ctx, mutation); err != nil {
		m.releaseLatch()
		return err
	}

	m.applyLocal(w.ID, func(w *store.Word) { w.FirstTimeInMemorizing = false })

	// Not an answer; only the deck position moves.
	m.mu.Lock()
	m.clearHandlingLocked()
	m.idx++
	m.mu.Unlock()
	return nil
}

// Answer records the verdict. "I know" promotes the word to short-term and
// leaves its difficulty as it stands; "I don't know" keeps it in memorizing
// and counts the difficulty up.
func (m *MemorizingMode) Answer(ctx context.Context, know bool) error {
	w, err := m.beginAnswer()
	if err != nil {
		return err
	}
	if w.FirstTimeInMemorizing {
		m.releaseLatch()
		return fmt.Errorf("word %s is on its first encounter, use Next", w.ID)
	}

	patch := map[string]any{}
	if know {
		patch["known2"] = store.TierShortTerm
	} else {
		patch["difficult"] = w.Difficult + 1
		// No tier change, but the review still counts as today's study.
		patch["studied_date"] = m.deps.Clock.NowISO()
	}

	if err := m.enqueueAndWait(ctx, Mutation{WordID: w.ID, Patch: patch, Mirror: true}); err != nil {
		m.releaseLatch()
		return err
	}

	now := m.deps.Clock.NowISO()
	m.applyLocal(w.ID, func(w *store.Word) {
		w.StudiedDate = now
		if know {
			w.Known2 = store.TierShortTerm
		} else {
			w.Difficult++
		}
	})
	m.endAnswer(know, true)
	return nil
}

// Destroy flushes pending writes and retires the mode.
func (m *MemorizingMode) Destroy(ctx context.Context) error {
	return m.destroy(ctx)
}
