package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhlim/wordbank/internal/clock"
)

// newBrokenStore wires a store over sqlmock to drive the driver-error paths
// the sqlite fixtures cannot reach.
func newBrokenStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := &Store{
		db:        sqlx.NewDb(db, "sqlmock"),
		dbName:    "WordsDB_default",
		contentID: "default",
		clock:     clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	return st, mock
}

func TestStore_DriverErrors(t *testing.T) {
	driverErr := errors.New("disk I/O error")

	t.Run("GetWords wraps the select failure", func(t *testing.T) {
		st, mock := newBrokenStore(t)
		mock.ExpectQuery("SELECT").WillReturnError(driverErr)

		_, err := st.GetWords(context.Background(), nil, 0, nil)
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "getWords", storeErr.Op)
		assert.ErrorIs(t, err, driverErr)
	})

	t.Run("CountWords wraps the count failure", func(t *testing.T) {
		st, mock := newBrokenStore(t)
		mock.ExpectQuery("SELECT COUNT").WillReturnError(driverErr)

		_, err := st.CountWords(context.Background(), nil)
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "countWords", storeErr.Op)
	})

	t.Run("Update wraps the exec failure", func(t *testing.T) {
		st, mock := newBrokenStore(t)
		mock.ExpectExec("UPDATE").WillReturnError(driverErr)

		err := st.Update(context.Background(), "w1", map[string]any{"difficult": 1})
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "update", storeErr.Op)
		assert.ErrorIs(t, err, driverErr)
	})

	t.Run("Update on a missing row is not found", func(t *testing.T) {
		st, mock := newBrokenStore(t)
		mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 0))

		err := st.Update(context.Background(), "missing", map[string]any{"difficult": 1})
		assert.ErrorIs(t, err, ErrWordNotFound)
	})

	t.Run("BulkUpsert wraps the begin failure", func(t *testing.T) {
		st, mock := newBrokenStore(t)
		mock.ExpectBegin().WillReturnError(driverErr)

		err := st.BulkUpsert(context.Background(), []Word{{ID: "w1", No: 1}})
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "tx", storeErr.Op)
	})
}
