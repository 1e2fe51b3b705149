package store

import (
	"errors"
	"fmt"
)

// ErrWordNotFound is returned when an update or get targets an id that does
// not exist in the open content database.
var ErrWordNotFound = errors.New("word not found")

// StoreError is a typed wrapper for store failures. A caller seeing one may
// reopen the handle and retry once; a second failure is fatal to the current
// mode.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
