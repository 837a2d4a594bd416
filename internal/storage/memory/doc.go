// Package memory provides the in-memory keyspace.
//
// Store maps keys to typed domain values on top of a sharded concurrent map.
// Expiry is enforced inside the store: a read never returns an expired value,
// and observing one deletes it. Sweeper removes expired keys that nobody
// reads.
package memory
