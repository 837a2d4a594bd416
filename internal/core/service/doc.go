// Package service provides the data-type engines and coordination services
// that commands run against.
//
// This package contains:
//
//   - StreamEngine: ID resolution, appends and range queries on streams
//   - ListService: push, pop and range operations on lists
//   - Coordinator: per-key waiter registries for blocking list pops and
//     blocking stream reads
//   - Primary: replica registry, command propagation and WAIT bookkeeping
//   - Hub: channel subscriptions for PUBLISH/SUBSCRIBE
//   - RateLimiterRegistry: per-client command rate limiting
//
// Engines depend on the Keyspace interface rather than a concrete store.
// Callers serialize command execution; Coordinator, Primary and Hub guard
// their own state because connection goroutines touch it while parked.
package service
