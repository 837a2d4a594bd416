// Package main provides the entry point for respkv-server.
//
// The server provides:
//
//   - A RESP listener (plain, and optionally TLS) for Redis clients
//   - Primary/replica replication over the same protocol
//   - RDB snapshots with an optional Badger-backed archive
//   - An admin HTTP endpoint with /metrics, health checks and snapshot export
//
// Usage:
//
//	respkv-server [flags]
//	respkv-server --config /path/to/config.yaml
//	respkv-server --port 6380 --replicaof "127.0.0.1 6379"
//
// Settings are read from flags, RESPKV_ environment variables, the YAML
// file and the built-in defaults, in that order of precedence.
package main
