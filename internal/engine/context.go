package engine

import (
	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/store"
)

// DefaultMaxCallDepth bounds the invocation chain per transaction,
// counting the top-level invocation as depth 1.
const DefaultMaxCallDepth = 16

// ExecutionContext is the per-transaction state threaded through every
// invocation of one top-level call.
//
// Caller, TxID, Height and Tx are shared by every fork. Depth grows by one
// per nested invocation; ReadOnly, once set, stays set for all descendants.
// Tx is the storage handle only: committing or rolling back is reserved to
// Engine.Call, which holds the *store.Tx.
type ExecutionContext struct {
	Caller   string
	TxID     string
	Height   int64
	Tx       store.Handle
	Depth    int
	MaxDepth int
	ReadOnly bool

	stats *callStats
}

// callStats is shared by a root context and all its forks.
type callStats struct {
	deepest int
	foreign int
	invoked int
}

// newRootContext creates the depth-0 context of a top-level call.
func newRootContext(caller, txID string, height int64, tx store.Handle, maxDepth int) *ExecutionContext {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	return &ExecutionContext{
		Caller:   caller,
		TxID:     txID,
		Height:   height,
		Tx:       tx,
		MaxDepth: maxDepth,
		stats:    &callStats{},
	}
}

// Fork returns a child context one level deeper. readOnly switches the
// child to read-only; it cannot switch an inherited read-only off.
//
// Fork fails with MaxCallDepthExceeded when the child would be deeper than
// MaxDepth.
func (ec *ExecutionContext) Fork(readOnly bool) (*ExecutionContext, error) {
	if ec.Depth+1 > ec.MaxDepth {
		return nil, fault.New(fault.MaxCallDepthExceeded,
			"call depth %d exceeds limit %d", ec.Depth+1, ec.MaxDepth)
	}
	child := *ec
	child.Depth++
	child.ReadOnly = ec.ReadOnly || readOnly
	if child.stats == nil {
		child.stats = &callStats{}
	}
	if child.Depth > child.stats.deepest {
		child.stats.deepest = child.Depth
	}
	return &child, nil
}

// Deepest returns the deepest depth any fork of this call reached.
func (ec *ExecutionContext) Deepest() int {
	if ec.stats == nil {
		return ec.Depth
	}
	return ec.stats.deepest
}
