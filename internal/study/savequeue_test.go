package study

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhlim/wordbank/internal/clock"
	"github.com/dhlim/wordbank/internal/store"
)

func newTestDeps(t *testing.T) (Deps, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	mgr := store.NewManager(t.TempDir(), clk)
	t.Cleanup(func() { _ = mgr.CloseAll() })

	st, err := mgr.Open(context.Background(), store.DBNameFor("default"))
	require.NoError(t, err)

	queue := NewSaveQueue(st, nil)
	t.Cleanup(func() { _ = queue.Close(context.Background()) })

	return Deps{Store: st, Clock: clk, Queue: queue, Phone: "01012345678"}, clk
}

func seedWords(t *testing.T, st *store.Store, words ...store.Word) {
	t.Helper()
	require.NoError(t, st.BulkUpsert(context.Background(), words))
}

func TestSaveQueue_AppliesInOrder(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, store.Word{ID: "w1", No: 1, Word: "먹다"})

	for i := 1; i <= 3; i++ {
		_, err := deps.Queue.Enqueue(Mutation{
			WordID: "w1",
			Patch:  map[string]any{"difficult": i},
			Mirror: true,
		})
		require.NoError(t, err)
	}
	require.NoError(t, deps.Queue.Flush(ctx))
	assert.Equal(t, 0, deps.Queue.Pending())

	w, err := deps.Store.GetWord(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 3, w.Difficult, "last write wins under FIFO order")

	mirrors, err := deps.Store.CountSync(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, mirrors)
}

func TestSaveQueue_StudyCountMirror(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()

	_, err := deps.Queue.Enqueue(Mutation{
		StudyCount: &StudyCountMirror{Phone: deps.Phone, Contents: "default", Count: 7},
	})
	require.NoError(t, err)
	require.NoError(t, deps.Queue.Flush(ctx))

	raw, ok, err := deps.Store.GetSetting(ctx, store.SettingStudyCount)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strconv.Itoa(7), raw)

	entries, err := deps.Store.CountSync(ctx, store.SyncPending)
	require.NoError(t, err)
	assert.Equal(t, 1, entries)
}

func TestSaveQueue_CloseRejectsNewMutations(t *testing.T) {
	deps, _ := newTestDeps(t)
	require.NoError(t, deps.Queue.Close(context.Background()))

	_, err := deps.Queue.Enqueue(Mutation{WordID: "w1", Patch: map[string]any{"difficult": 1}})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestSaveQueue_CloseDuringEnqueueBurst(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, store.Word{ID: "w1", No: 1, Word: "먹다"})

	// Hammer Enqueue from many goroutines while Close runs. Every accepted
	// mutation must become durable; every rejection must be ErrQueueClosed.
	var wg sync.WaitGroup
	acks := make(chan (<-chan struct{}), 1024)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ack, err := deps.Queue.Enqueue(Mutation{
					WordID: "w1",
					Patch:  map[string]any{"difficult": i},
				})
				if err != nil {
					assert.ErrorIs(t, err, ErrQueueClosed)
					return
				}
				acks <- ack
			}
		}()
	}

	require.NoError(t, deps.Queue.Close(ctx))
	wg.Wait()
	close(acks)

	for ack := range acks {
		select {
		case <-ack:
		case <-time.After(5 * time.Second):
			t.Fatal("an accepted mutation was never applied")
		}
	}
	assert.Equal(t, 0, deps.Queue.Pending())
}

func TestDestroyWaitsForInFlightAnswer(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	seedWords(t, deps.Store, store.Word{
		ID: "w1", No: 1, Word: "배우다", Meaning: "to learn",
		IsStudied: store.FlagOn, Known2: store.TierMemorizing,
	})

	mode, err := StartMemorizing(ctx, deps)
	require.NoError(t, err)

	// Hold the latch as an answer in flight would.
	_, err = mode.beginAnswer()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- mode.Destroy(ctx) }()

	select {
	case <-done:
		t.Fatal("Destroy returned while an answer held the latch")
	case <-time.After(50 * time.Millisecond):
	}

	mode.endAnswer(true, true)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Destroy never returned after the latch cleared")
	}

	assert.True(t, errors.Is(mode.Answer(ctx, true), ErrModeDestroyed))
}

func TestSaveQueue_FlushReportsAsyncError(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()

	// No such word; the update fails asynchronously and surfaces at Flush.
	_, err := deps.Queue.Enqueue(Mutation{WordID: "missing", Patch: map[string]any{"difficult": 1}})
	require.NoError(t, err)

	err = deps.Queue.Flush(ctx)
	assert.ErrorIs(t, err, store.ErrWordNotFound)

	// The error is consumed; a clean flush follows.
	assert.NoError(t, deps.Queue.Flush(ctx))
}
