// Package storage ties the in-memory keyspace to its persistence.
//
// The Engine owns:
//
//   - the memory Store, the single source of truth for all keys
//   - the execution lock that serializes every command against the Store
//   - the snapshot file at <dir>/<dbfilename> (SAVE, BGSAVE, periodic saves)
//   - the active expiry sweeper
//   - an optional Badger-backed Archive keeping a history of snapshots
//
// There is no write-ahead log; durability is bounded by the snapshot
// interval.
package storage
