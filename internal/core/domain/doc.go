// Package domain defines the value model shared by the store, the command
// layer and the snapshot codec.
//
//   - Value and Kind: typed, optionally expiring values held per key
//   - List: the list value payload
//   - Stream, StreamID, StreamEntry: append-only ID-ordered logs
//   - DomainError: errors that render directly as RESP error replies
//
// The package has no IO dependencies.
package domain
