package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("tx")

	assert.Equal(t, "tx-1", gen.Next())
	assert.Equal(t, "tx-2", gen.Next())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "tx-1", NewSequentialIDs("").Next())
}

func TestSequentialIDs_Concurrent(t *testing.T) {
	gen := NewSequentialIDs("id")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Next()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}
