// Package main provides the entry point for respkv-cli.
//
// respkv-cli sends commands to a respkv server, or to any server speaking
// the same protocol, and manages snapshots through the admin HTTP API:
//
//   - One-shot commands and an interactive mode with history
//   - Snapshot save, list and download with digest verification
//   - Offline RDB inspection
//
// Usage:
//
//	respkv-cli SET greeting hello
//	respkv-cli -p 6380 --tls --cacert ca.pem
//	respkv-cli --admin 127.0.0.1:9090 admin snapshot list -o json
//	respkv-cli rdb dump dump.rdb --match 'user:*'
package main
