package study

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhlim/wordbank/internal/store"
)

func TestStartDifficult_BoundaryIsStrict(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store,
		store.Word{ID: "twice", No: 1, IsStudied: store.FlagOn, Difficult: 2},
		store.Word{ID: "thrice", No: 2, IsStudied: store.FlagOn, Difficult: 3},
		store.Word{ID: "often", No: 3, IsStudied: store.FlagOn, Difficult: 5},
		store.Word{ID: "unstudied", No: 4, Difficult: 9},
	)

	review, err := StartDifficult(ctx, deps)
	require.NoError(t, err)
	defer func() { require.NoError(t, review.Destroy(ctx)) }()

	words := review.Words()
	require.Len(t, words, 2, "difficult means strictly more than two misses, studied only")
	assert.Equal(t, "often", words[0].ID, "hardest first")
	assert.Equal(t, "thrice", words[1].ID)
}

func TestDifficultReview_IsReadOnly(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store,
		store.Word{ID: "w1", No: 1, IsStudied: store.FlagOn, Difficult: 4})

	review, err := StartDifficult(ctx, deps)
	require.NoError(t, err)

	w, ok := review.Next()
	require.True(t, ok)
	assert.Equal(t, "w1", w.ID)
	_, ok = review.Next()
	assert.False(t, ok)

	require.NoError(t, review.Destroy(ctx))

	pending, err := deps.Store.CountSync(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, pending, "browsing writes nothing")
}
