// Package record defines the medical record model and its ledger state machine.
//
// A record moves through:
//
//	LOCAL ──submit──▶ PENDING ──ack──▶ COMMITTED ──verify mismatch──▶ DIVERGED
//	  ▲                 │                  ▲                              │
//	  └────abandon──────┘                  └───────────resync─────────────┘
//
// Soft deletion is a flag orthogonal to these states and is terminal for
// mutation. Chain helpers resolve a record's predecessor and check the
// previous-digest linkage of a subject's records.
package record
