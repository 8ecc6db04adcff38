package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/schemahost/internal/ir"
)

// LogEntry is one event of the combined history: exactly one of
// Deployment or Tx is set.
type LogEntry struct {
	Seq        int64
	Deployment *ir.Deployment
	Tx         *ir.TxRecord
}

// ReadLog returns deployments and calls interleaved in seq order, which is
// the order they happened in. Replay re-executes this stream.
func (s *Store) ReadLog(ctx context.Context) ([]LogEntry, error) {
	deployments, err := s.ReadDeployments(ctx)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	txs, err := s.ReadTxLog(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	entries := make([]LogEntry, 0, len(deployments)+len(txs))
	for i := range deployments {
		entries = append(entries, LogEntry{Seq: deployments[i].Seq, Deployment: &deployments[i]})
	}
	for i := range txs {
		entries = append(entries, LogEntry{Seq: txs[i].Seq, Tx: &txs[i]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Seq < entries[j].Seq
	})
	return entries, nil
}
