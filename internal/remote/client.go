// Package remote is the typed client over the row-oriented remote table
// service. Two transports exist: direct (caller-held bearer key) and proxy
// (a server-side function attaches the key). Callers depend on the Client
// capability, never on a transport.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mock_remote Client

// Client is the method surface shared by both transports.
type Client interface {
	List(ctx context.Context, table string, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, table, id string) (Record, error)
	Create(ctx context.Context, table string, fields map[string]any) (Record, error)
	Update(ctx context.Context, table, id string, fields map[string]any) (Record, error)
}

// ListOptions mirror the remote table's query parameters.
type ListOptions struct {
	FilterFormula string
	SortField     string
	SortDesc      bool
	PageSize      int
	Offset        string
}

// Record is one remote row.
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime string         `json:"createdTime,omitempty"`
}

// ListResult carries one page plus the server's offset cursor; an empty
// Offset means the listing is complete.
type ListResult struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// ErrAuthFailed distinguishes 401/403 responses. The session switches to
// offline on it; the sync worker stops without dropping entries.
var ErrAuthFailed = errors.New("remote authentication failed")

// TransientError marks failures worth retrying: network errors and 5xx.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient remote error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient remote error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RequestError marks permanent failures: 4xx other than auth. Entries that
// hit one are marked failed and logged, never retried.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("remote request rejected (status %d): %s", e.Status, e.Body)
}

// classifyStatus maps an HTTP response status to the error taxonomy.
func classifyStatus(status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthFailed
	case status >= 500:
		return &TransientError{Status: status, Err: fmt.Errorf("server error: %s", body)}
	default:
		return &RequestError{Status: status, Body: body}
	}
}
