// Package metric provides Prometheus metrics for respkv.
//
//   - prometheus.go: the registry, command and connection metrics and the
//     /metrics HTTP handler
//   - collector.go: a collector that samples keyspace and replication state
//     at scrape time
package metric
