// Package store provides SQLite-backed storage for subjects, authors and
// medical records. It is the authoritative local copy that the ledger anchors.
//
// # Records
//
//   - Every save is guarded by the record's version (optimistic locking);
//     a stale save fails with ErrVersionConflict
//   - Deletion of a record is soft: the Deleted flag is set and the row kept
//   - Deleting a subject physically removes its records (ON DELETE CASCADE)
//   - recorded_at keeps the wall clock as entered, with no zone, because it
//     is part of the digest pre-image
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
