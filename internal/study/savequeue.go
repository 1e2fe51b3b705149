// Package study implements the study-mode state machines: New, Memorizing,
// the Q-Memory family and the Difficult review channel.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/dhlim/wordbank/internal/store"
	"github.com/dhlim/wordbank/internal/syncqueue"
)

// ErrQueueClosed is returned when a mutation arrives after Close.
var ErrQueueClosed = errors.New("save queue is closed")

// Mutation is one word state change plus its optional remote mirrors.
type Mutation struct {
	WordID string
	Patch  map[string]any
	// Mirror enqueues the patch as a remote words-table write.
	Mirror bool
	// StudyCount, when set, persists the per-phone frontier and mirrors it
	// into the remote users table.
	StudyCount *StudyCountMirror
}

// StudyCountMirror advances the per-phone issued-words counter.
type StudyCountMirror struct {
	Phone    string
	Contents string
	Count    int
}

type saveTask struct {
	mutation Mutation
	// barrier tasks carry no mutation; they are acked when everything
	// enqueued before them has been applied.
	barrier chan struct{}
	// ack, when non-nil, is closed once this mutation is durable.
	ack chan struct{}
}

// SaveQueue applies word mutations to the local store in order and enqueues
// their remote mirrors. All modes of one session share a single queue; a
// mode's stop must not return before Flush resolves.
type SaveQueue struct {
	st *store.Store
	// onEnqueued wakes the sync worker after a mirror lands in the queue.
	onEnqueued func()

	tasks chan saveTask
	wg    sync.WaitGroup
	// senders covers the window between the closed check and the channel
	// send; Close waits on it so it never closes the channel under a send.
	senders sync.WaitGroup

	mu      sync.Mutex
	pending int
	closed  bool
	lastErr error
}

// NewSaveQueue creates a running SaveQueue over st. onEnqueued may be nil.
func NewSaveQueue(st *store.Store, onEnqueued func()) *SaveQueue {
	q := &SaveQueue{
		st:         st,
		onEnqueued: onEnqueued,
		tasks:      make(chan saveTask, 64),
	}
	q.wg.Add(1)
	go q.applier()
	return q
}

// Enqueue submits a mutation and returns a channel closed once it has been
// applied to the store and its mirrors are queued. Answer handlers wait on it
// before releasing the answer latch.
func (q *SaveQueue) Enqueue(m Mutation) (<-chan struct{}, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.pending++
	q.senders.Add(1)
	q.mu.Unlock()

	ack := make(chan struct{})
	q.tasks <- saveTask{mutation: m, ack: ack}
	q.senders.Done()
	return ack, nil
}

// Pending returns the number of mutations not yet durable.
func (q *SaveQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Flush blocks until every mutation enqueued before it has been applied. It
// returns the first asynchronous error seen since the previous Flush.
func (q *SaveQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return q.takeErr()
	}
	q.senders.Add(1)
	q.mu.Unlock()

	barrier := make(chan struct{})
	q.tasks <- saveTask{barrier: barrier}
	q.senders.Done()
	select {
	case <-barrier:
	case <-ctx.Done():
		return ctx.Err()
	}
	return q.takeErr()
}

// Close flushes and stops the applier. The queue cannot be reused.
func (q *SaveQueue) Close(ctx context.Context) error {
	flushErr := q.Flush(ctx)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return flushErr
	}
	q.closed = true
	q.mu.Unlock()

	q.senders.Wait()
	close(q.tasks)
	q.wg.Wait()
	return flushErr
}

func (q *SaveQueue) takeErr() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.lastErr
	q.lastErr = nil
	return err
}

func (q *SaveQueue) applier() {
	defer q.wg.Done()
	ctx := context.Background()
	for task := range q.tasks {
		if task.barrier != nil {
			close(task.barrier)
			continue
		}
		if err := q.apply(ctx, task.mutation); err != nil {
			slog.Error("save queue mutation failed", "word", task.mutation.WordID, "error", err)
			q.mu.Lock()
			if q.lastErr == nil {
				q.lastErr = err
			}
			q.mu.Unlock()
		}
		q.mu.Lock()
		q.pending--
		q.mu.Unlock()
		if task.ack != nil {
			close(task.ack)
		}
	}
}

func (q *SaveQueue) apply(ctx context.Context, m Mutation) error {
	if m.WordID != "" && len(m.Patch) > 0 {
		if err := q.st.Update(ctx, m.WordID, m.Patch); err != nil {
			return fmt.Errorf("st.Update > %w", err)
		}
		if m.Mirror {
			if _, err := syncqueue.EnqueueWordMirror(ctx, q.st, m.WordID, m.Patch); err != nil {
				return fmt.Errorf("syncqueue.EnqueueWordMirror > %w", err)
			}
			q.wake()
		}
	}

	if m.StudyCount != nil {
		sc := m.StudyCount
		if err := q.st.SaveSetting(ctx, store.SettingStudyCount, strconv.Itoa(sc.Count)); err != nil {
			return fmt.Errorf("st.SaveSetting(studyCount) > %w", err)
		}
		fields := map[string]any{"study_count": sc.Count, "contents": sc.Contents}
		if _, err := syncqueue.EnqueueUserMirror(ctx, q.st, sc.Phone, sc.Contents, fields); err != nil {
			return fmt.Errorf("syncqueue.EnqueueUserMirror > %w", err)
		}
		q.wake()
	}
	return nil
}

func (q *SaveQueue) wake() {
	if q.onEnqueued != nil {
		q.onEnqueued()
	}
}
