// Package cmap provides a string-keyed concurrent map split into shards.
//
// Keys are distributed across shards with murmur3, and each shard is guarded
// by its own RWMutex, so readers of different keys never contend.
//
// Usage:
//
//	m := cmap.New[*domain.Value]()
//	m.Set("key", v)
//	val, ok := m.Get("key")
//
// Iteration (Range, Keys, Items) locks one shard at a time, so it observes a
// per-shard consistent view only.
package cmap
