package study

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dhlim/wordbank/internal/loader"
	"github.com/dhlim/wordbank/internal/remote"
	mock_remote "github.com/dhlim/wordbank/internal/remote/mocks"
	"github.com/dhlim/wordbank/internal/store"
)

func unstudied(no int) store.Word {
	return store.Word{
		ID:      fmt.Sprintf("rec%d", no),
		No:      no,
		Word:    fmt.Sprintf("단어%d", no),
		Meaning: fmt.Sprintf("뜻%d", no),
		Content: "default",
	}
}

func TestStartNew_IssuesBatchFromFrontier(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	for no := 1; no <= 12; no++ {
		seedWords(t, deps.Store, unstudied(no))
	}
	require.NoError(t, deps.Store.SaveSetting(ctx, store.SettingStudyCount, "5"))

	mode, err := StartNew(ctx, deps)
	require.NoError(t, err)
	defer func() { require.NoError(t, mode.Destroy(ctx)) }()

	w, ok := mode.Current()
	require.True(t, ok)
	assert.Equal(t, 6, w.No, "issued words start past the frontier")
	assert.Equal(t, 7, mode.Stats().RemainingWords)
}

func TestStartNew_CapsBatchAtTen(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	for no := 1; no <= 15; no++ {
		seedWords(t, deps.Store, unstudied(no))
	}

	mode, err := StartNew(ctx, deps)
	require.NoError(t, err)
	defer func() { require.NoError(t, mode.Destroy(ctx)) }()

	assert.Equal(t, 10, mode.Stats().RemainingWords)
}

func TestNewMode_AnswerTransitions(t *testing.T) {
	deps, clk := newTestDeps(t)
	ctx := context.Background()
	for no := 1; no <= 12; no++ {
		seedWords(t, deps.Store, unstudied(no))
	}

	mode, err := StartNew(ctx, deps)
	require.NoError(t, err)

	// "I know" goes straight to short-term.
	require.NoError(t, mode.Answer(ctx, true))
	w1, err := deps.Store.GetWord(ctx, "rec1")
	require.NoError(t, err)
	assert.Equal(t, store.FlagOn, w1.IsStudied)
	assert.Equal(t, store.TierShortTerm, w1.Known2)
	assert.Equal(t, 0, w1.Difficult)
	assert.Equal(t, clk.NowISO(), w1.StudiedDate)

	// "I don't know" lands in memorizing with a first-encounter flag.
	require.NoError(t, mode.Answer(ctx, false))
	w2, err := deps.Store.GetWord(ctx, "rec2")
	require.NoError(t, err)
	assert.Equal(t, store.TierMemorizing, w2.Known2)
	assert.Equal(t, 1, w2.Difficult)
	assert.True(t, w2.FirstTimeInMemorizing)

	raw, ok, err := deps.Store.GetSetting(ctx, store.SettingStudyCount)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", raw, "frontier advances to the highest issued no")

	assert.Equal(t, Stats{KnownCount: 1, UnknownCount: 1, WordsStudied: 2, RemainingWords: 8}, mode.Stats())

	require.NoError(t, mode.Destroy(ctx))

	// Two word mirrors and two study-count mirrors wait in the queue.
	pending, err := deps.Store.CountSync(ctx, store.SyncPending)
	require.NoError(t, err)
	assert.Equal(t, 4, pending)
}

func TestNewMode_RejectsAfterDestroy(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, unstudied(1))

	mode, err := StartNew(ctx, deps)
	require.NoError(t, err)
	require.NoError(t, mode.Destroy(ctx))

	assert.ErrorIs(t, mode.Answer(ctx, true), ErrModeDestroyed)
}

func TestNewMode_BlockedSessionRefusesStart(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Blocked = func() bool { return true }

	_, err := StartNew(context.Background(), deps)
	assert.ErrorIs(t, err, ErrSessionBlocked)
}

func TestStartNew_ExtendsFromRemote(t *testing.T) {
	deps, clk := newTestDeps(t)
	ctx := context.Background()
	for no := 1; no <= 3; no++ {
		seedWords(t, deps.Store, unstudied(no))
	}

	ctrl := gomock.NewController(t)
	client := mock_remote.NewMockClient(ctrl)
	client.EXPECT().
		List(gomock.Any(), "tblWords", gomock.AssignableToTypeOf(remote.ListOptions{})).
		DoAndReturn(func(_ context.Context, _ string, opts remote.ListOptions) (remote.ListResult, error) {
			assert.Equal(t, "{No} > 3", opts.FilterFormula)
			return remote.ListResult{Records: []remote.Record{
				{ID: "rec4", Fields: map[string]any{"word": "나무", "meaning": "tree", "No": float64(4)}},
				{ID: "rec5", Fields: map[string]any{"word": "하늘", "meaning": "sky", "No": float64(5)}},
			}}, nil
		})

	deps.Loader = loader.New(client, "tblWords", clk)
	mode, err := StartNew(ctx, deps)
	require.NoError(t, err)
	defer func() { require.NoError(t, mode.Destroy(ctx)) }()

	assert.Equal(t, 5, mode.Stats().RemainingWords, "the remote page tops up the batch")
}

func TestStartNew_ExtendFailureIsNotFatal(t *testing.T) {
	deps, clk := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, unstudied(1))

	ctrl := gomock.NewController(t)
	client := mock_remote.NewMockClient(ctrl)
	client.EXPECT().
		List(gomock.Any(), "tblWords", gomock.Any()).
		Return(remote.ListResult{}, &remote.TransientError{Status: 502, Err: assert.AnError})

	deps.Loader = loader.New(client, "tblWords", clk)
	mode, err := StartNew(ctx, deps)
	require.NoError(t, err)
	defer func() { require.NoError(t, mode.Destroy(ctx)) }()

	assert.Equal(t, 1, mode.Stats().RemainingWords)
}
