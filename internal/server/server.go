// Package server exposes the read-only HTTP status surface. The engine is
// authoritative; nothing here mutates state.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/dhlim/wordbank/internal/progress"
	"github.com/dhlim/wordbank/internal/session"
)

// StatusSource is the slice of the session the status endpoints read.
type StatusSource interface {
	ContentID() string
	Counters(ctx context.Context) (progress.Counters, error)
	SyncStatus(ctx context.Context) (session.SyncStatus, error)
}

// Handler serves /healthz, /progress and /sync/status.
type Handler struct {
	source StatusSource
	mux    *http.ServeMux
}

// New creates the status handler with CORS for allowedOrigins.
func New(source StatusSource, allowedOrigins []string) http.Handler {
	h := &Handler{source: source, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux.HandleFunc("GET /progress", h.handleProgress)
	h.mux.HandleFunc("GET /sync/status", h.handleSyncStatus)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(h.mux)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	counters, err := h.source.Counters(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Content string `json:"content"`
		progress.Counters
	}{Content: h.source.ContentID(), Counters: counters})
}

func (h *Handler) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.source.SyncStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("cannot encode status response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	slog.Error("status endpoint failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
