package testutil

import "fmt"

// DefaultTxPrefix is used when a scenario names no tx prefix.
const DefaultTxPrefix = "test-tx"

// TxIDs hands out "prefix-1", "prefix-2", ... so that deterministic uuids
// and golden traces are stable across runs. It satisfies
// engine.TxIDGenerator.
type TxIDs struct {
	prefix string
	clock  *DeterministicClock
}

// NewTxIDs creates a generator. An empty prefix uses DefaultTxPrefix.
func NewTxIDs(prefix string) *TxIDs {
	if prefix == "" {
		prefix = DefaultTxPrefix
	}
	return &TxIDs{prefix: prefix, clock: NewDeterministicClock()}
}

// Generate returns the next tx id.
func (g *TxIDs) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.clock.Next())
}

// Reset restarts numbering at 1.
func (g *TxIDs) Reset() {
	g.clock.Reset()
}
