package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveSetting writes a key/value pair, replacing any existing value.
func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return &StoreError{Op: "saveSetting", Err: fmt.Errorf("db.ExecContext(upsert setting) > %w", err)}
	}
	return nil
}

// GetSetting returns the value for key and whether it was present.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StoreError{Op: "getSetting", Err: fmt.Errorf("db.GetContext(setting) > %w", err)}
	}
	return value, true, nil
}

// RemoveSetting deletes key. Removing an absent key is not an error.
func (s *Store) RemoveSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return &StoreError{Op: "removeSetting", Err: fmt.Errorf("db.ExecContext(delete setting) > %w", err)}
	}
	return nil
}
