// Package syncqueue drains the durable queue of pending remote writes. Local
// state is authoritative; the queue only mirrors it outward.
package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go"

	"github.com/dhlim/wordbank/internal/remote"
	"github.com/dhlim/wordbank/internal/store"
)

// Entry targets.
const (
	TargetWords = "words"
	TargetUsers = "users"
)

// Entry ops.
const (
	OpUpdate = "update"
	OpUpsert = "upsert"
)

// WordMirror is the payload of a words-table entry.
type WordMirror struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// UserMirror is the payload of a users-table entry. The row is addressed by
// phone + contents, not by id, because the client may not know the row id yet.
type UserMirror struct {
	Phone    string         `json:"phone"`
	Contents string         `json:"contents"`
	Fields   map[string]any `json:"fields"`
}

// EnqueueWordMirror appends a pending mirror of a word field patch.
func EnqueueWordMirror(ctx context.Context, st *store.Store, wordID string, fields map[string]any) (int64, error) {
	payload, err := json.Marshal(WordMirror{ID: wordID, Fields: fields})
	if err != nil {
		return 0, fmt.Errorf("json.Marshal(word mirror) > %w", err)
	}
	return st.EnqueueSync(ctx, OpUpdate, TargetWords, string(payload))
}

// EnqueueUserMirror appends a pending upsert of the per-phone users row.
func EnqueueUserMirror(ctx context.Context, st *store.Store, phone, contents string, fields map[string]any) (int64, error) {
	payload, err := json.Marshal(UserMirror{Phone: phone, Contents: contents, Fields: fields})
	if err != nil {
		return 0, fmt.Errorf("json.Marshal(user mirror) > %w", err)
	}
	return st.EnqueueSync(ctx, OpUpsert, TargetUsers, string(payload))
}

const defaultMaxAttempts = 3

// Worker processes the queue FIFO, one entry at a time, while online.
type Worker struct {
	st         *store.Store
	remote     remote.Client
	wordsTable string
	usersTable string

	maxAttempts uint
	baseDelay   time.Duration

	// onAuthFailure is invoked once when the remote rejects the credentials;
	// the session flips to offline. Entries are kept.
	onAuthFailure func()

	mu      sync.Mutex
	online  bool
	started bool
	stopCh  chan struct{}
	wakeCh  chan struct{}
	wg      sync.WaitGroup
}

// Option tweaks a Worker.
type Option func(*Worker)

// WithBaseDelay overrides the initial backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(w *Worker) { w.baseDelay = d }
}

// WithMaxAttempts overrides the per-entry attempt cap.
func WithMaxAttempts(n uint) Option {
	return func(w *Worker) { w.maxAttempts = n }
}

// WithAuthFailureHandler registers the offline-switch callback.
func WithAuthFailureHandler(fn func()) Option {
	return func(w *Worker) { w.onAuthFailure = fn }
}

// NewWorker creates a Worker over st mirroring into the two remote tables.
func NewWorker(st *store.Store, client remote.Client, wordsTable, usersTable string, opts ...Option) *Worker {
	w := &Worker{
		st:          st,
		remote:      client,
		wordsTable:  wordsTable,
		usersTable:  usersTable,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   500 * time.Millisecond,
		wakeCh:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the worker goroutine. Entries stranded in-flight by a crash
// are returned to pending first.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.st.ResetInFlightSync(ctx); err != nil {
		return fmt.Errorf("st.ResetInFlightSync > %w", err)
	}
	w.started = true
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the worker and waits for the in-flight entry to settle.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	close(w.stopCh)
	w.mu.Unlock()
	w.wg.Wait()
}

// SetOnline flips the online state. Transitioning to online wakes the worker.
func (w *Worker) SetOnline(online bool) {
	w.mu.Lock()
	was := w.online
	w.online = online
	w.mu.Unlock()
	if online && !was {
		w.Notify()
	}
}

// Online reports the current online state.
func (w *Worker) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Notify wakes the worker; call after enqueueing.
func (w *Worker) Notify() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// Depth returns the number of pending entries.
func (w *Worker) Depth(ctx context.Context) (int, error) {
	return w.st.CountSync(ctx, store.SyncPending)
}

// FailedCount returns the number of permanently failed entries.
func (w *Worker) FailedCount(ctx context.Context) (int, error) {
	return w.st.CountSync(ctx, store.SyncFailed)
}

func (w *Worker) loop() {
	defer w.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-w.stopCh:
			return
		case <-w.wakeCh:
		}
		if !w.Online() {
			continue
		}
		w.drain(ctx)
	}
}

// drain processes pending entries FIFO until the queue empties, the worker
// goes offline, or it is stopped.
func (w *Worker) drain(ctx context.Context) {
	for w.Online() {
		select {
		case <-w.stopCh:
			return
		default:
		}

		entry, err := w.st.NextPendingSync(ctx)
		if err != nil {
			slog.Error("sync worker cannot read queue", "error", err)
			return
		}
		if entry == nil {
			return
		}
		w.process(ctx, entry)
	}
}

func (w *Worker) process(ctx context.Context, entry *store.SyncEntry) {
	attempts := entry.Attempts
	if err := w.st.MarkSync(ctx, entry.ID, store.SyncInFlight, attempts); err != nil {
		slog.Error("sync worker cannot mark entry", "entry", entry.ID, "error", err)
		return
	}

	err := retry.Do(
		func() error {
			attempts++
			return w.send(ctx, entry)
		},
		retry.Attempts(w.maxAttempts),
		retry.Delay(w.baseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var transient *remote.TransientError
			return errors.As(err, &transient)
		}),
		retry.OnRetry(func(_ uint, err error) {
			slog.Warn("sync entry retry", "entry", entry.ID, "attempts", attempts, "error", err)
			if markErr := w.st.MarkSync(ctx, entry.ID, store.SyncInFlight, attempts); markErr != nil {
				slog.Error("sync worker cannot persist attempts", "entry", entry.ID, "error", markErr)
			}
		}),
	)

	switch {
	case err == nil:
		if err := w.st.DeleteSync(ctx, entry.ID); err != nil {
			slog.Error("sync worker cannot delete entry", "entry", entry.ID, "error", err)
		}

	case errors.Is(err, remote.ErrAuthFailed):
		// Keep the entry; the session decides when we come back online.
		if markErr := w.st.MarkSync(ctx, entry.ID, store.SyncPending, attempts); markErr != nil {
			slog.Error("sync worker cannot requeue entry", "entry", entry.ID, "error", markErr)
		}
		slog.Warn("sync worker switching to offline after auth failure", "entry", entry.ID)
		w.SetOnline(false)
		if w.onAuthFailure != nil {
			w.onAuthFailure()
		}

	default:
		var request *remote.RequestError
		permanent := errors.As(err, &request)
		if markErr := w.st.MarkSync(ctx, entry.ID, store.SyncFailed, attempts); markErr != nil {
			slog.Error("sync worker cannot fail entry", "entry", entry.ID, "error", markErr)
		}
		message := fmt.Sprintf("entry %d (%s %s) failed after %d attempts: %v", entry.ID, entry.Op, entry.Target, attempts, err)
		if !permanent {
			message = "transient attempts exhausted: " + message
		}
		if logErr := w.st.AppendSyncLog(ctx, entry.ID, message); logErr != nil {
			slog.Error("sync worker cannot append log", "entry", entry.ID, "error", logErr)
		}
	}
}

// send performs the remote mirror for one entry.
func (w *Worker) send(ctx context.Context, entry *store.SyncEntry) error {
	switch entry.Target {
	case TargetWords:
		var mirror WordMirror
		if err := json.Unmarshal([]byte(entry.Payload), &mirror); err != nil {
			return &remote.RequestError{Status: 0, Body: fmt.Sprintf("malformed word payload: %v", err)}
		}
		if _, err := w.remote.Update(ctx, w.wordsTable, mirror.ID, mirror.Fields); err != nil {
			return fmt.Errorf("remote.Update(words) > %w", err)
		}
		return nil

	case TargetUsers:
		var mirror UserMirror
		if err := json.Unmarshal([]byte(entry.Payload), &mirror); err != nil {
			return &remote.RequestError{Status: 0, Body: fmt.Sprintf("malformed user payload: %v", err)}
		}
		return w.upsertUser(ctx, mirror)

	default:
		return &remote.RequestError{Status: 0, Body: fmt.Sprintf("unknown target %q", entry.Target)}
	}
}

// upsertUser addresses the users row by phone + contents: update when it
// exists, create otherwise.
func (w *Worker) upsertUser(ctx context.Context, mirror UserMirror) error {
	formula := fmt.Sprintf("AND({phone}='%s', {contents}='%s')", mirror.Phone, mirror.Contents)
	result, err := w.remote.List(ctx, w.usersTable, remote.ListOptions{FilterFormula: formula, PageSize: 1})
	if err != nil {
		return fmt.Errorf("remote.List(users) > %w", err)
	}

	if len(result.Records) > 0 {
		if _, err := w.remote.Update(ctx, w.usersTable, result.Records[0].ID, mirror.Fields); err != nil {
			return fmt.Errorf("remote.Update(users) > %w", err)
		}
		return nil
	}

	fields := map[string]any{"phone": mirror.Phone, "contents": mirror.Contents}
	for key, value := range mirror.Fields {
		fields[key] = value
	}
	if _, err := w.remote.Create(ctx, w.usersTable, fields); err != nil {
		return fmt.Errorf("remote.Create(users) > %w", err)
	}
	return nil
}
