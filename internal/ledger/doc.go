// Package ledger is the client side of the external medical records ledger.
//
// The ledger network itself (ordering, endorsement, chaincode execution) is an
// opaque collaborator reached through two operations: submitting a
// transaction and evaluating a query, both addressed by function name with
// positional string arguments.
//
// # Connection lifecycle
//
// A Client is created degraded, connected by Start and released by Stop.
// Start resolves an enrolled identity from a filesystem wallet, loads the
// network profile, and dials it through a registered driver. Any failure
// leaves the client degraded: calls fail fast with NOT_INITIALIZED.
//
// # Results
//
// Every call returns a Result whose Outcome is OK, Retryable (TIMEOUT,
// INTERRUPTED, CONNECTION) or Fatal (NOT_INITIALIZED, REJECTED, NOT_FOUND).
// TIMEOUT and INTERRUPTED are ambiguous: the transaction may have committed.
// Callers resolve that by querying before resubmitting.
package ledger
