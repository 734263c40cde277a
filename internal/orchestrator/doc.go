// Package orchestrator synchronizes the local record store with the ledger.
//
// It composes the digest engine, the record state machine and a ledger
// client. Every operation branches on the ledger.Result outcome instead of
// error types:
//
//	LOCAL ──submit──▶ PENDING ──ack──▶ COMMITTED ──verify mismatch──▶ DIVERGED
//	  ▲                  │                 ▲                              │
//	  └─rejected/conn────┘                 └──────────operator resync─────┘
//
// A timed-out submission stays PENDING. Retrying it (or verifying it) asks
// the ledger first, so a record is never created twice. The ledger itself
// deduplicates by record id as well.
package orchestrator
