// Package handler provides the admin HTTP handlers.
//
// This package contains handlers for the admin endpoints:
//
//   - health.go: liveness and readiness checks
//   - admin.go: server info, on-demand snapshots and the snapshot archive
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate request
//   - Call the backend
//   - Format and return the JSON envelope
//   - Map errors to HTTP status codes
package handler
