package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SyncEntry is one pending remote mirror operation. Payload is JSON whose
// shape depends on target.
type SyncEntry struct {
	ID        int64  `db:"id"`
	Op        string `db:"op"`
	Target    string `db:"target"`
	Payload   string `db:"payload"`
	CreatedAt string `db:"created_at"`
	Attempts  int    `db:"attempts"`
	Status    string `db:"status"`
}

// SyncLogEntry records a permanently failed or skipped operation.
type SyncLogEntry struct {
	ID        int64  `db:"id"`
	EntryID   int64  `db:"entry_id"`
	Message   string `db:"message"`
	CreatedAt string `db:"created_at"`
}

// EnqueueSync appends a pending entry and returns its id.
func (s *Store) EnqueueSync(ctx context.Context, op, target, payload string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_queue (op, target, payload, created_at, attempts, status) VALUES (?, ?, ?, ?, 0, ?)",
		op, target, payload, s.clock.NowISO(), SyncPending)
	if err != nil {
		return 0, &StoreError{Op: "enqueueSync", Err: fmt.Errorf("db.ExecContext(insert sync entry) > %w", err)}
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, &StoreError{Op: "enqueueSync", Err: fmt.Errorf("result.LastInsertId() > %w", err)}
	}
	return id, nil
}

// NextPendingSync returns the oldest pending entry, or nil when the queue is
// drained.
func (s *Store) NextPendingSync(ctx context.Context) (*SyncEntry, error) {
	var entry SyncEntry
	err := s.db.GetContext(ctx, &entry,
		"SELECT * FROM sync_queue WHERE status = ? ORDER BY id LIMIT 1", SyncPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "nextPendingSync", Err: fmt.Errorf("db.GetContext(sync entry) > %w", err)}
	}
	return &entry, nil
}

// MarkSync updates an entry's status and attempt counter.
func (s *Store) MarkSync(ctx context.Context, id int64, status string, attempts int) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE sync_queue SET status = ?, attempts = ? WHERE id = ?", status, attempts, id); err != nil {
		return &StoreError{Op: "markSync", Err: fmt.Errorf("db.ExecContext(update sync entry) > %w", err)}
	}
	return nil
}

// DeleteSync removes an entry; done entries do not survive.
func (s *Store) DeleteSync(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id); err != nil {
		return &StoreError{Op: "deleteSync", Err: fmt.Errorf("db.ExecContext(delete sync entry) > %w", err)}
	}
	return nil
}

// CountSync counts entries with the given status; an empty status counts all.
func (s *Store) CountSync(ctx context.Context, status string) (int, error) {
	var count int
	var err error
	if status == "" {
		err = s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sync_queue")
	} else {
		err = s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sync_queue WHERE status = ?", status)
	}
	if err != nil {
		return 0, &StoreError{Op: "countSync", Err: fmt.Errorf("db.GetContext(count sync) > %w", err)}
	}
	return count, nil
}

// ResetInFlightSync returns in-flight entries to pending. Called on worker
// start so entries stranded by a crash are retried.
func (s *Store) ResetInFlightSync(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE sync_queue SET status = ? WHERE status = ?", SyncPending, SyncInFlight); err != nil {
		return &StoreError{Op: "resetInFlightSync", Err: fmt.Errorf("db.ExecContext(reset in-flight) > %w", err)}
	}
	return nil
}

// AppendSyncLog records a message about entryID (0 when no entry applies).
func (s *Store) AppendSyncLog(ctx context.Context, entryID int64, message string) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_log (entry_id, message, created_at) VALUES (?, ?, ?)",
		entryID, message, s.clock.NowISO()); err != nil {
		return &StoreError{Op: "appendSyncLog", Err: fmt.Errorf("db.ExecContext(insert sync log) > %w", err)}
	}
	return nil
}

// SyncLogs returns the most recent log entries, newest first.
func (s *Store) SyncLogs(ctx context.Context, limit int) ([]SyncLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []SyncLogEntry
	if err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM sync_log ORDER BY created_at DESC, id DESC LIMIT ?", limit); err != nil {
		return nil, &StoreError{Op: "syncLogs", Err: fmt.Errorf("db.SelectContext(sync logs) > %w", err)}
	}
	return logs, nil
}
