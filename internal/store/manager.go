package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dhlim/wordbank/internal/clock"
)

// Manager owns every open store handle in the process, keyed by database
// name. Opening a store for one content closes any handle bound to a
// different content, so at most one content database is ever open.
type Manager struct {
	dataDir string
	clock   clock.Clock

	mu       sync.Mutex
	handles  map[string]*Store
	onMutate []func(contentID string)
}

// NewManager creates a Manager rooted at dataDir. The directory is created on
// first open.
func NewManager(dataDir string, clk clock.Clock) *Manager {
	return &Manager{
		dataDir: dataDir,
		clock:   clk,
		handles: map[string]*Store{},
	}
}

// OnWordMutated registers fn to run after every successful word write. The
// progress aggregator subscribes here; it is the single invalidation path.
func (m *Manager) OnWordMutated(fn func(contentID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMutate = append(m.onMutate, fn)
}

// Open returns the handle for dbName, creating the database file and its
// schema on first open. Idempotent: repeated opens return the cached handle.
func (m *Manager) Open(ctx context.Context, dbName string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(ctx, dbName)
}

func (m *Manager) openLocked(ctx context.Context, dbName string) (*Store, error) {
	if st, ok := m.handles[dbName]; ok {
		return st, nil
	}
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	db, err := sqlx.Open("sqlite3", m.pathFor(dbName)+"?_busy_timeout=5000&_fk=1")
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	// sqlite serializes writers; a single connection avoids database-locked
	// errors between the save queue and the sync worker.
	db.SetMaxOpenConns(1)

	if err := createSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "open", Err: err}
	}

	st := &Store{
		mgr:       m,
		db:        db,
		dbName:    dbName,
		contentID: ContentOfDBName(dbName),
		clock:     m.clock,
	}
	m.handles[dbName] = st
	slog.Debug("opened content database", "db", dbName)
	return st, nil
}

// SwitchContent opens the store owning contentID after closing every handle
// bound to a different database. No concurrent handles to different contents
// can leak past this call.
func (m *Manager) SwitchContent(ctx context.Context, contentID string) (*Store, error) {
	dbName := DBNameFor(contentID)

	m.mu.Lock()
	defer m.mu.Unlock()
	for name, st := range m.handles {
		if name == dbName {
			continue
		}
		if err := st.db.Close(); err != nil {
			return nil, &StoreError{Op: "switch", Err: fmt.Errorf("close %s > %w", name, err)}
		}
		delete(m.handles, name)
		slog.Debug("closed content database", "db", name)
	}
	return m.openLocked(ctx, dbName)
}

// CheckExists reports whether the database for dbName exists with its object
// stores created. Used to decide whether a first-run download is needed.
func (m *Manager) CheckExists(ctx context.Context, dbName string) (bool, error) {
	if _, err := os.Stat(m.pathFor(dbName)); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, &StoreError{Op: "checkExists", Err: err}
	}

	db, err := sqlx.Open("sqlite3", m.pathFor(dbName)+"?mode=ro")
	if err != nil {
		return false, &StoreError{Op: "checkExists", Err: err}
	}
	defer func() { _ = db.Close() }()

	var tables int
	if err := db.GetContext(ctx, &tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'"); err != nil {
		return false, &StoreError{Op: "checkExists", Err: err}
	}
	return tables > 0, nil
}

// Reopen closes and reopens the handle for dbName. Callers use it for the
// single retry allowed after a transaction abort.
func (m *Manager) Reopen(ctx context.Context, dbName string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.handles[dbName]; ok {
		if err := st.db.Close(); err != nil {
			return nil, &StoreError{Op: "reopen", Err: err}
		}
		delete(m.handles, dbName)
	}
	return m.openLocked(ctx, dbName)
}

// Handle returns the cached handle for dbName without opening one.
func (m *Manager) Handle(dbName string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.handles[dbName]
	return st, ok
}

// OpenHandles lists the names of currently open databases.
func (m *Manager) OpenHandles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.handles))
	for name := range m.handles {
		names = append(names, name)
	}
	return names
}

// CloseAll closes every open handle. Called on session shutdown.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, st := range m.handles {
		if err := st.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s > %w", name, err)
		}
		delete(m.handles, name)
	}
	return firstErr
}

func (m *Manager) pathFor(dbName string) string {
	return filepath.Join(m.dataDir, dbName+".db")
}

func (m *Manager) notifyMutated(contentID string) {
	m.mu.Lock()
	listeners := make([]func(string), len(m.onMutate))
	copy(listeners, m.onMutate)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(contentID)
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS words (
	id TEXT PRIMARY KEY,
	no INTEGER NOT NULL DEFAULT 0,
	word TEXT NOT NULL DEFAULT '',
	meaning TEXT NOT NULL DEFAULT '',
	pronunciation TEXT NOT NULL DEFAULT '',
	vipup TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	is_studied TEXT NOT NULL DEFAULT '0',
	known2 TEXT NOT NULL DEFAULT '0',
	status TEXT NOT NULL DEFAULT '0',
	difficult INTEGER NOT NULL DEFAULT 0,
	first_time_in_memorizing INTEGER NOT NULL DEFAULT 0,
	studied_date TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_words_no ON words (no);
CREATE INDEX IF NOT EXISTS idx_words_known2 ON words (known2);
CREATE INDEX IF NOT EXISTS idx_words_status ON words (status);
CREATE INDEX IF NOT EXISTS idx_words_difficult ON words (difficult);
CREATE INDEX IF NOT EXISTS idx_words_studied_date ON words (studied_date);
CREATE INDEX IF NOT EXISTS idx_words_is_studied ON words (is_studied);
CREATE INDEX IF NOT EXISTS idx_words_updated_at ON words (updated_at);
CREATE INDEX IF NOT EXISTS idx_words_content ON words (content);
CREATE INDEX IF NOT EXISTS idx_words_phone ON words (phone);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	op TEXT NOT NULL,
	target TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue (status);
CREATE INDEX IF NOT EXISTS idx_sync_queue_created_at ON sync_queue (created_at);

CREATE TABLE IF NOT EXISTS sync_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_log_created_at ON sync_log (created_at);
`

func createSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("db.ExecContext(schema) > %w", err)
	}
	return nil
}
