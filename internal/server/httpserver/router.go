package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/respkv/internal/core/service"
	"github.com/yndnr/respkv/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Backend reports server state.
	Backend handler.Backend

	// Snapshots takes on-demand snapshots.
	Snapshots handler.Snapshotter

	// Archive serves archived snapshots. Nil disables the archive routes.
	Archive handler.Archive

	// Metrics serves /metrics. Nil disables the route.
	Metrics http.Handler

	// Logger for request logging.
	Logger *slog.Logger

	// AllowList is the IP/CIDR allowlist for /metrics and /admin/v1
	// (empty = no restriction).
	AllowList []string

	// RateLimit is the per-IP limit in requests/second, 0 disables it.
	RateLimit int

	// EnableAudit enables audit logging for admin requests.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit:   100,
		EnableAudit: true,
	}
}

// NewRouter creates the admin router. Health routes are open; /metrics and
// /admin/v1 pass the network ACL.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := handler.New(cfg.Backend, cfg.Snapshots, cfg.Archive, logger)
	limiters := service.NewRateLimiterRegistry(cfg.RateLimit)

	mux := http.NewServeMux()

	health := Chain(h, Recover(logger), RequestID())
	mux.Handle("GET /health", health)
	mux.Handle("GET /ready", health)

	protected := []Middleware{
		Recover(logger),
		RequestID(),
		NetworkACL(&NetworkACLConfig{AllowList: cfg.AllowList, Logger: logger}),
		RateLimit(limiters),
	}

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, protected...))
	}

	admin := protected
	if cfg.EnableAudit {
		admin = append(append([]Middleware(nil), protected...), Audit(logger))
	}
	adminHandler := Chain(h, admin...)

	mux.Handle("GET /admin/v1/info", adminHandler)
	mux.Handle("POST /admin/v1/snapshots", adminHandler)
	mux.Handle("GET /admin/v1/snapshots", adminHandler)
	mux.Handle("GET /admin/v1/snapshots/{id}/file", adminHandler)

	return mux
}
