package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/respkv/internal/storage"
	"github.com/yndnr/respkv/internal/storage/snapshot"
	"github.com/yndnr/respkv/internal/telemetry/logger"
	"github.com/yndnr/respkv/internal/telemetry/metric"
)

// Error codes carried in the envelope and the X-Error-Code header.
const (
	CodeBadRequest      = "RK-ARG-4000"
	CodeNotFound        = "RK-ARCHIVE-4040"
	CodeArchiveDisabled = "RK-ARCHIVE-5030"
	CodeSaveInProgress  = "RK-SNAPSHOT-4090"
	CodeNotReady        = "RK-SYS-5030"
	CodeInternal        = "RK-SYS-5000"
)

// Backend reports live server state.
type Backend interface {
	Stats() metric.Stats
	Ready() bool
	NumConns() int
}

// Snapshotter takes on-demand snapshots.
type Snapshotter interface {
	Save(ctx context.Context) (*snapshot.Info, error)
	LastSave() time.Time
	Saving() bool
}

// Archive reads archived snapshots.
type Archive interface {
	List() ([]storage.ArchiveEntry, error)
	Get(id string) (*storage.ArchiveEntry, []byte, error)
	Encrypted() bool
}

// Handler serves the admin API.
type Handler struct {
	backend   Backend
	snapshots Snapshotter
	archive   Archive
	logger    *slog.Logger
	started   time.Time
	mux       *http.ServeMux
}

// New creates a Handler. archive may be nil when archiving is disabled.
func New(backend Backend, snapshots Snapshotter, archive Archive, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		backend:   backend,
		snapshots: snapshots,
		archive:   archive,
		logger:    logger,
		started:   time.Now(),
		mux:       http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /admin/v1/info", h.handleInfo)
	h.mux.HandleFunc("POST /admin/v1/snapshots", h.handleCreateSnapshot)
	h.mux.HandleFunc("GET /admin/v1/snapshots", h.handleListSnapshots)
	h.mux.HandleFunc("GET /admin/v1/snapshots/{id}/file", h.handleDownloadSnapshot)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// handleServiceError converts backend errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrArchiveEntryNotFound):
		h.writeError(w, r, http.StatusNotFound, CodeNotFound, "snapshot not found", nil)
	case errors.Is(err, storage.ErrArchiveClosed):
		h.writeError(w, r, http.StatusServiceUnavailable, CodeArchiveDisabled, "archive closed", nil)
	case errors.Is(err, storage.ErrSaveInProgress):
		h.writeError(w, r, http.StatusConflict, CodeSaveInProgress, "background save in progress", nil)
	default:
		h.logger.Error("internal error", "request_id", getRequestID(r), "error", err)
		h.writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
	}
}

// getRequestID extracts the request ID set by the RequestID middleware,
// falling back to the inbound header.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}
