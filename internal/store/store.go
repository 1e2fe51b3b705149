package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/dhlim/wordbank/internal/clock"
)

// Store is the handle to one content database. Obtain it through the Manager;
// it is safe for use from multiple goroutines.
type Store struct {
	mgr       *Manager
	db        *sqlx.DB
	dbName    string
	contentID string
	clock     clock.Clock
}

// Name returns the database name, e.g. "WordsDB_default".
func (s *Store) Name() string { return s.dbName }

// ContentID returns the sanitized content id this store belongs to.
func (s *Store) ContentID() string { return s.contentID }

// GetWords returns words matching filter. limit <= 0 means no limit; a nil
// sort returns rows in no ascending order.
func (s *Store) GetWords(ctx context.Context, filter Filter, limit int, by *Sort) ([]Word, error) {
	where, args, err := filter.whereClause()
	if err != nil {
		return nil, &StoreError{Op: "getWords", Err: err}
	}

	query := "SELECT * FROM words" + where
	if by == nil {
		by = &Sort{Column: "no"}
	}
	if !filterableColumns[by.Column] {
		return nil, &StoreError{Op: "getWords", Err: fmt.Errorf("sort column %q is not allowed", by.Column)}
	}
	query += " ORDER BY " + by.Column
	if by.Desc {
		query += " DESC"
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var words []Word
	if err := s.db.SelectContext(ctx, &words, query, args...); err != nil {
		return nil, &StoreError{Op: "getWords", Err: fmt.Errorf("db.SelectContext(words) > %w", err)}
	}
	return words, nil
}

// CountWords counts words matching filter.
func (s *Store) CountWords(ctx context.Context, filter Filter) (int, error) {
	where, args, err := filter.whereClause()
	if err != nil {
		return 0, &StoreError{Op: "countWords", Err: err}
	}
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM words"+where, args...); err != nil {
		return 0, &StoreError{Op: "countWords", Err: fmt.Errorf("db.GetContext(count words) > %w", err)}
	}
	return count, nil
}

// GetWord returns one word by id, or ErrWordNotFound.
func (s *Store) GetWord(ctx context.Context, id string) (*Word, error) {
	var w Word
	err := s.db.GetContext(ctx, &w, "SELECT * FROM words WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWordNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "getWord", Err: fmt.Errorf("db.GetContext(word) > %w", err)}
	}
	return &w, nil
}

const upsertWordQuery = `
INSERT INTO words (
	id, no, word, meaning, pronunciation, vipup, content, phone,
	is_studied, known2, status, difficult, first_time_in_memorizing,
	studied_date, created_at, updated_at
) VALUES (
	:id, :no, :word, :meaning, :pronunciation, :vipup, :content, :phone,
	:is_studied, :known2, :status, :difficult, :first_time_in_memorizing,
	:studied_date, :created_at, :updated_at
)
ON CONFLICT (id) DO UPDATE SET
	no = excluded.no,
	word = excluded.word,
	meaning = excluded.meaning,
	pronunciation = excluded.pronunciation,
	vipup = excluded.vipup,
	content = excluded.content,
	phone = excluded.phone,
	is_studied = excluded.is_studied,
	known2 = excluded.known2,
	status = excluded.status,
	difficult = excluded.difficult,
	first_time_in_memorizing = excluded.first_time_in_memorizing,
	studied_date = excluded.studied_date,
	updated_at = excluded.updated_at`

// UpsertWord normalizes w, stamps updated_at (and created_at on first write)
// and writes it. Mutation listeners fire on success.
func (s *Store) UpsertWord(ctx context.Context, w Word) error {
	if err := s.upsertTx(ctx, s.db, &w); err != nil {
		return err
	}
	s.mgr.notifyMutated(s.contentID)
	return nil
}

// BulkUpsert writes all words in one transaction. Either the whole page lands
// or none of it does.
func (s *Store) BulkUpsert(ctx context.Context, words []Word) error {
	if len(words) == 0 {
		return nil
	}
	err := s.runInTx(ctx, func(tx *sqlx.Tx) error {
		for i := range words {
			if err := s.upsertTx(ctx, tx, &words[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.mgr.notifyMutated(s.contentID)
	return nil
}

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

func (s *Store) upsertTx(ctx context.Context, ex namedExecer, w *Word) error {
	w.Normalize()
	if w.ID == "" {
		return &StoreError{Op: "upsertWord", Err: errors.New("word id is empty")}
	}
	now := s.clock.NowISO()
	if w.CreatedAt == "" {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	if _, err := ex.NamedExecContext(ctx, upsertWordQuery, w); err != nil {
		return &StoreError{Op: "upsertWord", Err: fmt.Errorf("db.NamedExecContext(upsert word) > %w", err)}
	}
	return nil
}

// Update patches a word in place. Patch keys are column names; tier and flag
// values are coerced to their string enums and updated_at is always stamped.
// When the patch changes is_studied or known2 and carries no studied_date of
// its own, studied_date is stamped too. Mutation listeners fire on success.
func (s *Store) Update(ctx context.Context, id string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}

	now := s.clock.NowISO()
	normalized := make(map[string]any, len(patch)+2)
	for column, value := range patch {
		if !updatableColumns[column] {
			return &StoreError{Op: "update", Err: fmt.Errorf("column %q is not updatable", column)}
		}
		normalized[column] = normalizeValue(column, value)
	}
	_, touchesStudied := normalized["is_studied"]
	_, touchesTier := normalized["known2"]
	if _, hasDate := normalized["studied_date"]; !hasDate && (touchesStudied || touchesTier) {
		normalized["studied_date"] = now
	}
	normalized["updated_at"] = now

	columns := make([]string, 0, len(normalized))
	for column := range normalized {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	assignments := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+1)
	for _, column := range columns {
		assignments = append(assignments, column+" = ?")
		args = append(args, normalized[column])
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE words SET "+strings.Join(assignments, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return &StoreError{Op: "update", Err: fmt.Errorf("db.ExecContext(update word) > %w", err)}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &StoreError{Op: "update", Err: fmt.Errorf("result.RowsAffected() > %w", err)}
	}
	if affected == 0 {
		return ErrWordNotFound
	}
	s.mgr.notifyMutated(s.contentID)
	return nil
}

var updatableColumns = map[string]bool{
	"word":                     true,
	"meaning":                  true,
	"pronunciation":            true,
	"vipup":                    true,
	"is_studied":               true,
	"known2":                   true,
	"status":                   true,
	"difficult":                true,
	"first_time_in_memorizing": true,
	"studied_date":             true,
}

// normalizeValue enforces the dynamic-typing boundary: tier and flag columns
// become strings, counters become ints, booleans become 0/1.
func normalizeValue(column string, value any) any {
	switch column {
	case "is_studied", "status":
		return normalizeFlag(fmt.Sprintf("%v", value))
	case "known2":
		return normalizeTier(fmt.Sprintf("%v", value))
	case "difficult":
		switch n := value.(type) {
		case int:
			if n < 0 {
				return 0
			}
			return n
		case int64:
			if n < 0 {
				return 0
			}
			return n
		default:
			return value
		}
	case "first_time_in_memorizing":
		if b, ok := value.(bool); ok {
			if b {
				return 1
			}
			return 0
		}
		return value
	default:
		return value
	}
}

func (s *Store) runInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "tx", Err: fmt.Errorf("begin transaction: %w", err)}
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return &StoreError{Op: "tx", Err: fmt.Errorf("rollback transaction: %w (original error: %v)", rbErr, err)}
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "tx", Err: fmt.Errorf("commit transaction: %w", err)}
	}
	return nil
}
