// Package snapshot manages the on-disk RDB snapshot file.
//
// The snapshot lives at <dir>/<dbfilename>. Saves are atomic: the file is
// written to a temporary sibling, synced and renamed over the target, so a
// crash mid-save leaves the previous snapshot intact.
//
// Every save reports a BLAKE2b-256 digest of the file content, which the
// archive uses to skip unchanged snapshots and to verify exports.
package snapshot
