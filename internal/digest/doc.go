// Package digest computes the canonical content digest of a medical record.
//
// The digest binds a record's clinical content to the digest of the record
// that precedes it in the same subject's chain, so editing any committed
// record changes every digest after it.
//
// Wire contract:
//   - Pre-image: subject|timestamp|diagnosis|treatment|prescription|previous
//   - Missing prescription is the empty string
//   - Missing previous digest is the sentinel "0"
//   - Timestamp uses the ISO-8601 local date-time rendering (see FormatTimestamp)
//   - SHA-256, lowercase hex, 64 characters
//
// Changing any of the above breaks verification of every record already
// committed to the ledger. This package does no I/O and holds no state.
package digest
