// Package shutdown coordinates graceful process shutdown.
//
// Hooks run once, in registration order, when SIGINT or SIGTERM arrives or
// the parent context ends. They share one deadline:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("resp server", srv.Shutdown)
//	h.OnShutdown("final snapshot", saveFn)
//	err := h.Wait(ctx)
package shutdown
