package study

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhlim/wordbank/internal/store"
)

// newModeBatchSize is how many unstudied words one New session issues.
const newModeBatchSize = 10

// NewMode issues unstudied words in no order, starting at the per-phone
// studyCount frontier so two devices sharing a phone do not re-issue the same
// batch.
type NewMode struct {
	base
	frontier int
}

// StartNew loads the next batch of unstudied words. When the local store runs
// short it asks the loader for one more remote page; failure to extend is not
// fatal, the mode runs with what it has.
func StartNew(ctx context.Context, deps Deps) (*NewMode, error) {
	if deps.Blocked != nil && deps.Blocked() {
		return nil, ErrSessionBlocked
	}

	frontier, err := studyCount(ctx, deps.Store)
	if err != nil {
		return nil, err
	}

	words, err := fetchNewBatch(ctx, deps.Store, frontier)
	if err != nil {
		return nil, err
	}

	if len(words) < newModeBatchSize && deps.Loader != nil {
		afterNo := frontier
		if len(words) > 0 {
			afterNo = words[len(words)-1].No
		}
		added, err := deps.Loader.ExtendFrom(ctx, deps.Store, deps.Phone, deps.Store.ContentID(), afterNo)
		if err != nil {
			slog.Warn("new mode cannot extend word list", "error", err)
		} else if added > 0 {
			words, err = fetchNewBatch(ctx, deps.Store, frontier)
			if err != nil {
				return nil, err
			}
		}
	}

	return &NewMode{base: newBase(deps, words), frontier: frontier}, nil
}

func fetchNewBatch(ctx context.Context, st *store.Store, frontier int) ([]store.Word, error) {
	words, err := st.GetWords(ctx, store.Filter{
		"is_studied": store.FlagOff,
		"no":         store.Range{GT: store.Int(frontier)},
	}, newModeBatchSize, nil)
	if err != nil {
		return nil, fmt.Errorf("st.GetWords(unstudied) > %w", err)
	}
	return words, nil
}

// Answer records the verdict for the current word. "I know" sends the word
// straight to short-term and clears its difficulty; "I don't know" sends it to
// memorizing, counts the difficulty up and flags the first memorizing pass.
// The frontier advances to the word's no either way.
func (m *NewMode) Answer(ctx context.Context, know bool) error {
	w, err := m.beginAnswer()
	if err != nil {
		return err
	}

	patch := map[string]any{"is_studied": store.FlagOn}
	if know {
		patch["known2"] = store.TierShortTerm
		patch["difficult"] = 0
	} else {
		patch["known2"] = store.TierMemorizing
		patch["difficult"] = w.Difficult + 1
		patch["first_time_in_memorizing"] = true
	}

	mutation := Mutation{WordID: w.ID, Patch: patch, Mirror: true}
	if w.No > m.frontier {
		m.frontier = w.No
		mutation.StudyCount = &StudyCountMirror{
			Phone:    m.deps.Phone,
			Contents: m.deps.Store.ContentID(),
			Count:    m.frontier,
		}
	}

	if err := m.enqueueAndWait(ctx, mutation); err != nil {
		m.releaseLatch()
		return err
	}

	now := m.deps.Clock.NowISO()
	m.applyLocal(w.ID, func(w *store.Word) {
		w.IsStudied = store.FlagOn
		w.StudiedDate = now
		if know {
			w.Known2 = store.TierShortTerm
			w.Difficult = 0
		} else {
			w.Known2 = store.TierMemorizing
			w.Difficult++
			w.FirstTimeInMemorizing = true
		}
	})
	m.endAnswer(know, true)
	return nil
}

// Destroy flushes pending writes and retires the mode.
func (m *NewMode) Destroy(ctx context.Context) error {
	return m.destroy(ctx)
}
