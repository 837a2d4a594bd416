// Package httpserver provides the admin HTTP/HTTPS server.
//
// Endpoints:
//
//   - Health endpoints: /health, /ready
//   - Metrics: /metrics (Prometheus exposition)
//   - Admin endpoints: /admin/v1/info, /admin/v1/snapshots
//
// Features:
//
//   - Optional TLS with certificate hot reload
//   - Middleware chain: Recover, RequestID, NetworkACL, RateLimit, Audit
//   - Graceful shutdown
package httpserver
