package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates "<prefix>-1", "<prefix>-2", ... for use as
// transaction ids in tests.
//
// Thread-safety: Next is safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "tx".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "tx"
	}
	return &SequentialIDs{prefix: prefix}
}

// Next returns the next id.
func (g *SequentialIDs) Next() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
