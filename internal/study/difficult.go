package study

import (
	"context"
	"fmt"

	"github.com/dhlim/wordbank/internal/store"
)

// difficultCap bounds the review list.
const difficultCap = 100

// difficultThreshold: a word qualifies only past two misses.
const difficultThreshold = 2

// DifficultReview is the read-only channel over words missed more than twice,
// hardest first. Browsing it changes no learning state.
type DifficultReview struct {
	base
}

// StartDifficult loads the difficult words, difficulty descending, capped.
func StartDifficult(ctx context.Context, deps Deps) (*DifficultReview, error) {
	if deps.Blocked != nil && deps.Blocked() {
		return nil, ErrSessionBlocked
	}
	words, err := deps.Store.GetWords(ctx, store.Filter{
		"is_studied": store.FlagOn,
		"difficult":  store.Range{GT: store.Int(difficultThreshold)},
	}, difficultCap, &store.Sort{Column: "difficult", Desc: true})
	if err != nil {
		return nil, fmt.Errorf("st.GetWords(difficult) > %w", err)
	}
	return &DifficultReview{base: newBase(deps, words)}, nil
}

// Words returns the full review list.
func (d *DifficultReview) Words() []store.Word {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]store.Word, len(d.words))
	copy(out, d.words)
	return out
}

// Next moves the browse cursor forward.
func (d *DifficultReview) Next() (store.Word, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed || d.idx >= len(d.words) {
		return store.Word{}, false
	}
	w := d.words[d.idx]
	d.idx++
	return w, true
}

// Destroy retires the review. Nothing to flush; the channel never writes.
func (d *DifficultReview) Destroy(ctx context.Context) error {
	return d.destroy(ctx)
}
