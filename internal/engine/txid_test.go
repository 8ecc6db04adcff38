package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.LessOrEqual(t, a[:8], b[:8], "ids sort by creation time")
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("tx")
	assert.Equal(t, "tx-1", g.Generate())
	assert.Equal(t, "tx-2", g.Generate())
	assert.Equal(t, "tx-3", g.Generate())
}

func TestSequenceGenerator_Concurrent(t *testing.T) {
	g := NewSequenceGenerator("c")
	const n = 100

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, "c-101", g.Generate())
}
