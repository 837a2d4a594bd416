package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/respkv/internal/infra/buildinfo"
	"github.com/yndnr/respkv/internal/storage"
)

// handleInfo handles GET /admin/v1/info.
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	st := h.backend.Stats()
	resp := InfoResponse{
		Build:         buildinfo.Get(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Clients:       h.backend.NumConns(),
		Keyspace: KeyspaceInfo{
			Keys:           st.Keys,
			Expires:        st.Expires,
			BlockedClients: st.BlockedClients,
			PubSubChannels: st.PubSubChannels,
		},
		Replication: ReplicationInfo{
			Role:              st.Role,
			Offset:            st.ReplicationOffset,
			ConnectedReplicas: st.ConnectedReplicas,
		},
		Persistence: PersistenceInfo{
			LastSave: h.snapshots.LastSave().UTC(),
			Saving:   h.snapshots.Saving(),
		},
	}

	if h.archive != nil {
		entries, err := h.archive.List()
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		resp.Archive = &ArchiveSummary{Entries: len(entries), Encrypted: h.archive.Encrypted()}
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleCreateSnapshot handles POST /admin/v1/snapshots.
func (h *Handler) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots.Saving() {
		h.handleServiceError(w, r, storage.ErrSaveInProgress)
		return
	}

	info, err := h.snapshots.Save(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, SnapshotResponse{
		Path:      info.Path,
		Size:      info.Size,
		Keys:      info.Keys,
		Digest:    info.Digest,
		CreatedAt: info.CreatedAt.UTC(),
	})
}

// handleListSnapshots handles GET /admin/v1/snapshots, newest first.
func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeArchiveDisabled, "snapshot archive is disabled", nil)
		return
	}

	entries, err := h.archive.List()
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	limit := len(entries)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, r, http.StatusBadRequest, CodeBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, limit)
	}

	resp := ListSnapshotsResponse{
		Snapshots: make([]ArchiveEntryResponse, 0, limit),
		Total:     len(entries),
	}
	for i := len(entries) - 1; i >= 0 && len(resp.Snapshots) < limit; i-- {
		resp.Snapshots = append(resp.Snapshots, toEntryResponse(entries[i]))
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleDownloadSnapshot handles GET /admin/v1/snapshots/{id}/file. The body
// is the decrypted RDB file.
func (h *Handler) handleDownloadSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeArchiveDisabled, "snapshot archive is disabled", nil)
		return
	}

	id := r.PathValue("id")
	if _, err := ulid.ParseStrict(id); err != nil {
		h.writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid snapshot id", nil)
		return
	}

	entry, data, err := h.archive.Get(id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+entry.ID+`.rdb"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Snapshot-Digest", entry.Digest)
	w.Header().Set("X-Request-ID", getRequestID(r))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("snapshot download interrupted", "id", id, "error", err)
	}
}

func toEntryResponse(e storage.ArchiveEntry) ArchiveEntryResponse {
	return ArchiveEntryResponse{
		ID:        e.ID,
		CreatedAt: e.CreatedAt.UTC(),
		Keys:      e.Keys,
		Size:      e.Size,
		Digest:    e.Digest,
		Encrypted: e.Encrypted,
	}
}
