package handler

import (
	"time"

	"github.com/yndnr/respkv/internal/infra/buildinfo"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// HealthResponse is the body of GET /health and GET /ready.
type HealthResponse struct {
	Status string `json:"status"`
	Role   string `json:"role,omitempty"`
	Time   string `json:"time"`
}

// InfoResponse is the body of GET /admin/v1/info.
type InfoResponse struct {
	Build         buildinfo.Info  `json:"build"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Clients       int             `json:"connected_clients"`
	Keyspace      KeyspaceInfo    `json:"keyspace"`
	Replication   ReplicationInfo `json:"replication"`
	Persistence   PersistenceInfo `json:"persistence"`
	Archive       *ArchiveSummary `json:"archive,omitempty"`
}

// KeyspaceInfo summarizes the keyspace.
type KeyspaceInfo struct {
	Keys           int `json:"keys"`
	Expires        int `json:"expires"`
	BlockedClients int `json:"blocked_clients"`
	PubSubChannels int `json:"pubsub_channels"`
}

// ReplicationInfo summarizes the replication role.
type ReplicationInfo struct {
	Role              string `json:"role"`
	Offset            int64  `json:"offset"`
	ConnectedReplicas int    `json:"connected_replicas"`
}

// PersistenceInfo summarizes snapshot state.
type PersistenceInfo struct {
	LastSave time.Time `json:"last_save"`
	Saving   bool      `json:"bgsave_in_progress"`
}

// ArchiveSummary summarizes the snapshot archive.
type ArchiveSummary struct {
	Entries   int  `json:"entries"`
	Encrypted bool `json:"encrypted"`
}

// SnapshotResponse is the body of POST /admin/v1/snapshots.
type SnapshotResponse struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Keys      int       `json:"keys"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchiveEntryResponse describes one archived snapshot.
type ArchiveEntryResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Keys      int       `json:"keys"`
	Size      int64     `json:"size"`
	Digest    string    `json:"digest"`
	Encrypted bool      `json:"encrypted"`
}

// ListSnapshotsResponse is the body of GET /admin/v1/snapshots.
type ListSnapshotsResponse struct {
	Snapshots []ArchiveEntryResponse `json:"snapshots"`
	Total     int                    `json:"total"`
}
