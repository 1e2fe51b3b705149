package study

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhlim/wordbank/internal/store"
)

func qword(id string, no int, tier string, status string, studiedDate string) store.Word {
	return store.Word{
		ID:          id,
		No:          no,
		Word:        "사과하다",
		Meaning:     "사과", // correct choice is 사
		Content:     "default",
		IsStudied:   store.FlagOn,
		Known2:      tier,
		Status:      status,
		StudiedDate: studiedDate,
	}
}

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

// correctIndex locates the correct choice instead of predicting the shuffle.
func correctIndex(t *testing.T, q Question) int {
	t.Helper()
	want := firstSyllable(q.Word.Meaning)
	for i, choice := range q.Choices {
		if choice == want {
			return i
		}
	}
	t.Fatalf("correct choice %q missing from %v", want, q.Choices)
	return -1
}

func captureFlips(q *QMemory) *[]Outcome {
	var outcomes []Outcome
	q.SetOnFlip(func(o Outcome) { outcomes = append(outcomes, o) })
	return &outcomes
}

func TestQMemory_GeneralCorrectChoice(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, qword("w1", 1, store.TierMemorizing, store.FlagOff, ""))

	q, err := StartQMemory(ctx, deps, QGeneral, "", testRand())
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Destroy(ctx)) }()
	outcomes := captureFlips(q)

	question, ok := q.Present()
	require.True(t, ok)
	require.NoError(t, q.Choose(ctx, correctIndex(t, question)))

	w, err := deps.Store.GetWord(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, store.FlagOn, w.Status)
	assert.Equal(t, 0, w.Difficult)

	require.Len(t, *outcomes, 1)
	flip := (*outcomes)[0]
	assert.True(t, flip.Correct)
	assert.False(t, flip.TimedOut)
	assert.Equal(t, "사", flip.Answer)
	assert.Equal(t, time.Second, flip.FlipDelay)
	assert.Equal(t, 100, q.Score())

	_, ok = q.Present()
	assert.False(t, ok, "single-word run is over")
	assert.ErrorIs(t, q.Choose(ctx, 0), ErrNoCurrentWord)
}

func TestQMemory_GeneralWrongChoice(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, qword("w1", 1, store.TierMemorizing, store.FlagOff, ""))

	q, err := StartQMemory(ctx, deps, QGeneral, "", testRand())
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Destroy(ctx)) }()
	outcomes := captureFlips(q)

	question, ok := q.Present()
	require.True(t, ok)
	require.NoError(t, q.Choose(ctx, 1-correctIndex(t, question)))

	w, err := deps.Store.GetWord(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, store.FlagOff, w.Status)
	assert.Equal(t, 1, w.Difficult)

	require.Len(t, *outcomes, 1)
	assert.False(t, (*outcomes)[0].Correct)
	assert.Equal(t, 2*time.Second, (*outcomes)[0].FlipDelay)
	assert.Equal(t, 0, q.Score())
}

func TestQMemory_TimeoutCountsWrong(t *testing.T) {
	deps, clk := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, qword("w1", 1, store.TierMemorizing, store.FlagOff, ""))

	q, err := StartQMemory(ctx, deps, QGeneral, "", testRand())
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Destroy(ctx)) }()
	outcomes := captureFlips(q)

	_, ok := q.Present()
	require.True(t, ok)

	clk.Advance(1999 * time.Millisecond)
	assert.Empty(t, *outcomes, "the window is still open")

	clk.Advance(1 * time.Millisecond)
	require.Len(t, *outcomes, 1)
	assert.True(t, (*outcomes)[0].TimedOut)
	assert.False(t, (*outcomes)[0].Correct)

	w, err := deps.Store.GetWord(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, w.Difficult)

	assert.ErrorIs(t, q.Choose(ctx, 0), ErrNoCurrentWord, "a late tap lands on a flipped card")
}

func TestQMemory_Type3DoublesWindow(t *testing.T) {
	deps, clk := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, qword("w1", 1, store.TierMemorizing, store.FlagOff, ""))

	q, err := StartQMemory(ctx, deps, QGeneral, "3", testRand())
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Destroy(ctx)) }()
	outcomes := captureFlips(q)

	_, ok := q.Present()
	require.True(t, ok)

	clk.Advance(3999 * time.Millisecond)
	assert.Empty(t, *outcomes)

	clk.Advance(1 * time.Millisecond)
	assert.Len(t, *outcomes, 1)
}

func TestQMemory_ShortTermTransitions(t *testing.T) {
	tests := []struct {
		name          string
		correct       bool
		wantTier      string
		wantDifficult int
	}{
		{name: "correct promotes to long-term", correct: true, wantTier: store.TierLongTerm},
		{name: "wrong demotes to memorizing", correct: false, wantTier: store.TierMemorizing, wantDifficult: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps, clk := newTestDeps(t)
			ctx := context.Background()
			seedWords(t, deps.Store, qword("w1", 1, store.TierShortTerm, store.FlagOff, ""))

			q, err := StartQMemory(ctx, deps, QShortTerm, "", testRand())
			require.NoError(t, err)
			defer func() { require.NoError(t, q.Destroy(ctx)) }()

			question, ok := q.Present()
			require.True(t, ok)
			idx := correctIndex(t, question)
			if !tc.correct {
				idx = 1 - idx
			}
			require.NoError(t, q.Choose(ctx, idx))

			w, err := deps.Store.GetWord(ctx, "w1")
			require.NoError(t, err)
			assert.Equal(t, tc.wantTier, w.Known2)
			assert.Equal(t, tc.wantDifficult, w.Difficult)
			if tc.correct {
				assert.Equal(t, clk.NowISO(), w.StudiedDate)
			}
		})
	}
}

func TestQMemory_LongTermOnlyDueWords(t *testing.T) {
	deps, clk := newTestDeps(t)
	ctx := context.Background()
	// Civil midnight for the fake clock instant is 2025-02-28T15:00:00.000Z.
	seedWords(t, deps.Store,
		qword("due", 1, store.TierLongTerm, store.FlagOff, "2025-02-28T10:00:00.000Z"),
		qword("confirmed", 2, store.TierLongTerm, store.FlagOff, "2025-03-01T00:00:00.000Z"),
	)

	q, err := StartQMemory(ctx, deps, QLongTerm, "", testRand())
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Destroy(ctx)) }()

	assert.Equal(t, 1, q.Stats().RemainingWords, "a word confirmed today is not asked again")

	question, ok := q.Present()
	require.True(t, ok)
	require.Equal(t, "due", question.Word.ID)
	require.NoError(t, q.Choose(ctx, correctIndex(t, question)))

	// Re-confirm only: the tier stays long-term.
	w, err := deps.Store.GetWord(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, store.TierLongTerm, w.Known2)
	assert.Equal(t, clk.NowISO(), w.StudiedDate)
}

func TestQMemory_LongTermWrongDemotes(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store,
		qword("due", 1, store.TierLongTerm, store.FlagOff, "2025-02-28T10:00:00.000Z"))

	q, err := StartQMemory(ctx, deps, QLongTerm, "", testRand())
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Destroy(ctx)) }()

	question, ok := q.Present()
	require.True(t, ok)
	require.NoError(t, q.Choose(ctx, 1-correctIndex(t, question)))

	w, err := deps.Store.GetWord(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, store.TierShortTerm, w.Known2)
	assert.Equal(t, 1, w.Difficult)
}

func TestQMemory_DestroyCancelsTimer(t *testing.T) {
	deps, clk := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, qword("w1", 1, store.TierMemorizing, store.FlagOff, ""))

	q, err := StartQMemory(ctx, deps, QGeneral, "", testRand())
	require.NoError(t, err)
	outcomes := captureFlips(q)

	_, ok := q.Present()
	require.True(t, ok)
	require.NoError(t, q.Destroy(ctx))

	clk.Advance(10 * time.Second)
	assert.Empty(t, *outcomes)

	w, err := deps.Store.GetWord(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 0, w.Difficult, "no transition after destroy")
}

func TestQMemory_ScoreOverRun(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store,
		qword("w1", 1, store.TierMemorizing, store.FlagOff, ""),
		qword("w2", 2, store.TierMemorizing, store.FlagOff, ""),
	)

	q, err := StartQMemory(ctx, deps, QGeneral, "", testRand())
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Destroy(ctx)) }()

	question, ok := q.Present()
	require.True(t, ok)
	require.NoError(t, q.Choose(ctx, correctIndex(t, question)))

	question, ok = q.Present()
	require.True(t, ok)
	require.NoError(t, q.Choose(ctx, 1-correctIndex(t, question)))

	assert.Equal(t, 50, q.Score())
	assert.Equal(t, Stats{KnownCount: 1, UnknownCount: 1, WordsStudied: 2}, q.Stats())
}
