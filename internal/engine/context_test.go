package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/fault"
)

func TestForkDepthAndSharing(t *testing.T) {
	root := newRootContext(alice, "tx-1", 9, nil, 3)
	assert.Equal(t, 0, root.Depth)

	c1, err := root.Fork(false)
	require.NoError(t, err)
	assert.Equal(t, 1, c1.Depth)
	assert.Equal(t, alice, c1.Caller)
	assert.Equal(t, "tx-1", c1.TxID)
	assert.Equal(t, int64(9), c1.Height)
	assert.Equal(t, 0, root.Depth, "parent unchanged")

	c2, err := c1.Fork(false)
	require.NoError(t, err)
	c3, err := c2.Fork(false)
	require.NoError(t, err)
	assert.Equal(t, 3, c3.Depth)

	_, err = c3.Fork(false)
	assert.True(t, fault.Is(err, fault.MaxCallDepthExceeded))
	assert.Equal(t, 3, root.Deepest())
}

func TestForkReadOnlyIsSticky(t *testing.T) {
	root := newRootContext(alice, "tx-1", 0, nil, 0)
	assert.Equal(t, DefaultMaxCallDepth, root.MaxDepth)

	rw, err := root.Fork(false)
	require.NoError(t, err)
	assert.False(t, rw.ReadOnly)

	ro, err := rw.Fork(true)
	require.NoError(t, err)
	assert.True(t, ro.ReadOnly)
	assert.False(t, rw.ReadOnly)

	still, err := ro.Fork(false)
	require.NoError(t, err)
	assert.True(t, still.ReadOnly, "a child cannot switch read-only off")
}
