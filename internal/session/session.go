package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/dhlim/wordbank/internal/clock"
	"github.com/dhlim/wordbank/internal/loader"
	"github.com/dhlim/wordbank/internal/progress"
	"github.com/dhlim/wordbank/internal/remote"
	"github.com/dhlim/wordbank/internal/store"
	"github.com/dhlim/wordbank/internal/study"
	"github.com/dhlim/wordbank/internal/syncqueue"
	"github.com/dhlim/wordbank/internal/token"
)

// ErrNotStarted is returned for any call before a successful Start.
var ErrNotStarted = errors.New("session is not started")

// tokenRecheckInterval is how often the stored claims are re-validated.
const tokenRecheckInterval = 5 * time.Minute

// Options configures a Session.
type Options struct {
	DataDir    string
	Remote     remote.Client
	WordsTable string
	UsersTable string
	// Clock defaults to the system clock.
	Clock clock.Clock
}

// SyncStatus is the snapshot the status server reports.
type SyncStatus struct {
	Depth  int  `json:"depth"`
	Failed int  `json:"failed"`
	Online bool `json:"online"`
}

// Session owns every component of one study session. Nothing here is a
// package-level singleton; two Sessions in one process stay independent.
type Session struct {
	opts  Options
	clock clock.Clock
	gate  *token.Gate
	ldr   *loader.Loader

	state     *State
	mgr       *store.Manager
	agg       *progress.Aggregator
	scheduler *gocron.Scheduler

	// blocked is atomic: study modes consult it through Deps.Blocked while
	// the session mutex is held.
	blocked atomic.Bool

	mu      sync.Mutex
	started bool
	claims  token.Claims
	st      *store.Store
	worker  *syncqueue.Worker
	queue   *study.SaveQueue
	mode    study.Mode
}

// New creates a Session. Start must run before anything else.
func New(opts Options) (*Session, error) {
	if opts.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if opts.Remote == nil {
		return nil, errors.New("remote client is required")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Session{
		opts:  opts,
		clock: clk,
		gate:  token.NewGate(clk),
		ldr:   loader.New(opts.Remote, opts.WordsTable, clk),
	}, nil
}

// Start validates the token and brings the session up for contents. The gate
// runs first: a blocked token means no store or remote component is ever
// constructed. An empty contents falls back to the state file, then "default".
func (s *Session) Start(ctx context.Context, rawToken, contents string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("session already started")
	}

	claims, err := s.gate.Validate(rawToken)
	if err != nil {
		s.blocked.Store(true)
		return fmt.Errorf("gate.Validate > %w", err)
	}
	s.claims = claims

	state, err := LoadState(s.opts.DataDir)
	if err != nil {
		return fmt.Errorf("session.LoadState > %w", err)
	}
	s.state = state

	contentID := contents
	if contentID == "" {
		contentID, _ = state.Get(StateCurrentContent)
	}
	contentID = store.SanitizeContent(contentID)

	s.mgr = store.NewManager(s.opts.DataDir, s.clock)
	s.agg = progress.New(s.mgr, s.clock)

	if err := s.bindContentLocked(ctx, contentID); err != nil {
		return err
	}
	if err := s.persistIdentityLocked(ctx, contentID); err != nil {
		return err
	}

	s.scheduler = gocron.NewScheduler(time.UTC)
	if _, err := s.scheduler.Every(tokenRecheckInterval).Do(s.RecheckToken); err != nil {
		return fmt.Errorf("scheduler.Every > %w", err)
	}
	s.scheduler.StartAsync()

	s.started = true
	slog.Info("session started", "phone", claims.Phone, "content", contentID)
	return nil
}

// bindContentLocked opens the content store and wires the per-content worker
// and save queue to it.
func (s *Session) bindContentLocked(ctx context.Context, contentID string) error {
	st, err := s.mgr.SwitchContent(ctx, contentID)
	if err != nil {
		return fmt.Errorf("mgr.SwitchContent > %w", err)
	}
	s.st = st

	s.worker = syncqueue.NewWorker(st, s.opts.Remote, s.opts.WordsTable, s.opts.UsersTable,
		syncqueue.WithAuthFailureHandler(func() {
			slog.Warn("remote rejected credentials, staying offline")
		}))
	if err := s.worker.Start(ctx); err != nil {
		return fmt.Errorf("worker.Start > %w", err)
	}
	s.worker.SetOnline(true)

	s.queue = study.NewSaveQueue(st, s.worker.Notify)
	return nil
}

// unbindContentLocked flushes the save queue and stops the worker.
func (s *Session) unbindContentLocked(ctx context.Context) error {
	if s.queue != nil {
		if err := s.queue.Close(ctx); err != nil {
			return fmt.Errorf("queue.Close > %w", err)
		}
		s.queue = nil
	}
	if s.worker != nil {
		s.worker.Stop()
		s.worker = nil
	}
	return nil
}

func (s *Session) persistIdentityLocked(ctx context.Context, contentID string) error {
	if _, err := s.state.DeviceID(); err != nil {
		return fmt.Errorf("state.DeviceID > %w", err)
	}
	pairs := map[string]string{
		StateCurrentContent: contentID,
		StateCurrentDBName:  store.DBNameFor(contentID),
		StatePhone:          s.claims.Phone,
		StateContents:       contentID,
	}
	for key, value := range pairs {
		if err := s.state.Set(key, value); err != nil {
			return fmt.Errorf("state.Set(%s) > %w", key, err)
		}
	}
	if err := s.st.SaveSetting(ctx, store.SettingCurrentPhoneNumber, s.claims.Phone); err != nil {
		return fmt.Errorf("st.SaveSetting(phone) > %w", err)
	}
	return nil
}

// RecheckToken re-validates the stored claims. On expiry the session flips
// into the terminal blocked state: new interactions are refused, in-flight
// work is left to finish.
func (s *Session) RecheckToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked.Load() {
		return study.ErrSessionBlocked
	}
	if err := s.gate.Recheck(s.claims); err != nil {
		s.blocked.Store(true)
		if s.worker != nil {
			s.worker.SetOnline(false)
		}
		slog.Warn("token expired mid-session, blocking new interactions")
		return fmt.Errorf("gate.Recheck > %w", err)
	}
	return nil
}

// Blocked reports whether the session refuses new interactions.
func (s *Session) Blocked() bool {
	return s.blocked.Load()
}

// Phone returns the authenticated phone number.
func (s *Session) Phone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims.Phone
}

// ContentID returns the active content.
func (s *Session) ContentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return ""
	}
	return s.st.ContentID()
}

// Store exposes the active content store.
func (s *Session) Store() *store.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *Session) studyDepsLocked() study.Deps {
	return study.Deps{
		Store:   s.st,
		Clock:   s.clock,
		Queue:   s.queue,
		Loader:  s.ldr,
		Phone:   s.claims.Phone,
		Blocked: s.Blocked,
	}
}

// checkReadyLocked gates every interaction behind start and the token state.
func (s *Session) checkReadyLocked() error {
	if !s.started {
		return ErrNotStarted
	}
	if s.blocked.Load() {
		return study.ErrSessionBlocked
	}
	return nil
}

// destroyModeLocked retires the active mode, awaiting its flush.
func (s *Session) destroyModeLocked(ctx context.Context) error {
	if s.mode == nil {
		return nil
	}
	if err := s.mode.Destroy(ctx); err != nil {
		return fmt.Errorf("mode.Destroy > %w", err)
	}
	s.mode = nil
	return nil
}

// DestroyMode retires the active study mode.
func (s *Session) DestroyMode(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyModeLocked(ctx)
}

// StartNewMode activates New mode, retiring any active mode first.
func (s *Session) StartNewMode(ctx context.Context) (*study.NewMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReadyLocked(); err != nil {
		return nil, err
	}
	if err := s.destroyModeLocked(ctx); err != nil {
		return nil, err
	}
	mode, err := study.StartNew(ctx, s.studyDepsLocked())
	if err != nil {
		return nil, err
	}
	s.mode = mode
	return mode, nil
}

// StartMemorizingMode activates Memorizing mode.
func (s *Session) StartMemorizingMode(ctx context.Context) (*study.MemorizingMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReadyLocked(); err != nil {
		return nil, err
	}
	if err := s.destroyModeLocked(ctx); err != nil {
		return nil, err
	}
	mode, err := study.StartMemorizing(ctx, s.studyDepsLocked())
	if err != nil {
		return nil, err
	}
	s.mode = mode
	return mode, nil
}

// StartQMemoryMode activates a Q-Memory run. entryType comes from the launch
// URL and widens the answer window when it is "3".
func (s *Session) StartQMemoryMode(ctx context.Context, variant study.QVariant, entryType string) (*study.QMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReadyLocked(); err != nil {
		return nil, err
	}
	if err := s.destroyModeLocked(ctx); err != nil {
		return nil, err
	}
	mode, err := study.StartQMemory(ctx, s.studyDepsLocked(), variant, entryType, nil)
	if err != nil {
		return nil, err
	}
	s.mode = mode
	return mode, nil
}

// StartDifficultReview activates the read-only difficult channel.
func (s *Session) StartDifficultReview(ctx context.Context) (*study.DifficultReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReadyLocked(); err != nil {
		return nil, err
	}
	if err := s.destroyModeLocked(ctx); err != nil {
		return nil, err
	}
	mode, err := study.StartDifficult(ctx, s.studyDepsLocked())
	if err != nil {
		return nil, err
	}
	s.mode = mode
	return mode, nil
}

// EnsureLoaded runs the first-run download for the active content. A populated
// store makes it a no-op.
func (s *Session) EnsureLoaded(ctx context.Context, onProgress loader.ProgressFunc) error {
	s.mu.Lock()
	if err := s.checkReadyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.mode != nil {
		s.mu.Unlock()
		return errors.New("download cannot run while a mode is active")
	}
	st := s.st
	phone := s.claims.Phone
	s.mu.Unlock()

	return s.ldr.Run(ctx, st, phone, st.ContentID(), onProgress)
}

// SwitchContent retires the active mode, rebinds the worker and save queue to
// the new content store and triggers the first-run download when the new store
// is empty. Download failures leave the session usable offline.
func (s *Session) SwitchContent(ctx context.Context, contents string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReadyLocked(); err != nil {
		return err
	}

	contentID := store.SanitizeContent(contents)
	if s.st != nil && s.st.ContentID() == contentID {
		return nil
	}

	if err := s.destroyModeLocked(ctx); err != nil {
		return err
	}
	if err := s.unbindContentLocked(ctx); err != nil {
		return err
	}
	if err := s.bindContentLocked(ctx, contentID); err != nil {
		return err
	}
	s.agg.InvalidateAll()
	if err := s.persistIdentityLocked(ctx, contentID); err != nil {
		return err
	}

	count, err := s.st.CountWords(ctx, nil)
	if err != nil {
		return fmt.Errorf("st.CountWords > %w", err)
	}
	if count == 0 {
		if err := s.ldr.Run(ctx, s.st, s.claims.Phone, contentID, nil); err != nil {
			slog.Warn("first-run download failed, continuing offline", "content", contentID, "error", err)
		}
	}
	return nil
}

// Counters returns the aggregator view for the active content.
func (s *Session) Counters(ctx context.Context) (progress.Counters, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return progress.Counters{}, ErrNotStarted
	}
	agg, contentID := s.agg, s.st.ContentID()
	s.mu.Unlock()
	return agg.Counters(ctx, contentID)
}

// SyncStatus reports the sync queue health.
func (s *Session) SyncStatus(ctx context.Context) (SyncStatus, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return SyncStatus{}, ErrNotStarted
	}
	worker := s.worker
	s.mu.Unlock()

	depth, err := worker.Depth(ctx)
	if err != nil {
		return SyncStatus{}, fmt.Errorf("worker.Depth > %w", err)
	}
	failed, err := worker.FailedCount(ctx)
	if err != nil {
		return SyncStatus{}, fmt.Errorf("worker.FailedCount > %w", err)
	}
	return SyncStatus{Depth: depth, Failed: failed, Online: worker.Online()}, nil
}

// Close shuts the session down: active mode destroyed, queue flushed, worker
// and scheduler stopped, every store handle closed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false

	var firstErr error
	if err := s.destroyModeLocked(ctx); err != nil {
		firstErr = err
	}
	if err := s.unbindContentLocked(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if err := s.mgr.CloseAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
