package engine

import (
	"context"
	"fmt"

	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/store"
)

// Replay re-executes the log of src against the empty store dst and checks
// that every call reproduces its logged outcome.
//
// Deployments and calls are replayed in seq order with their original seq
// numbers, tx ids, callers and heights. Since the dispatch path has no
// hidden inputs (no wall clock, no randomness, foreign targets read from
// storage), a faithful engine reproduces identical result hashes, delta
// digests and error kinds.
func Replay(ctx context.Context, src, dst *store.Store, opts ...Option) (*ReplayReport, error) {
	entries, err := src.ReadLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if last, err := dst.LastSeq(ctx); err != nil {
		return nil, fmt.Errorf("inspect destination: %w", err)
	} else if last != 0 {
		return nil, fmt.Errorf("replay destination is not empty (seq %d)", last)
	}

	clock := NewClock()
	e := New(dst, append(opts, WithClock(clock))...)
	report := &ReplayReport{}

	for _, entry := range entries {
		clock.AdvanceTo(entry.Seq - 1)

		switch {
		case entry.Deployment != nil:
			d := entry.Deployment
			id, err := e.Deploy(ctx, d.Source, d.Owner)
			if err != nil {
				return report, fmt.Errorf("redeploy seq %d: %w", entry.Seq, err)
			}
			if id != d.SchemaID {
				report.add(entry.Seq, "", "schema_id", string(d.SchemaID), string(id))
			}
			report.Deployments++

		case entry.Tx != nil:
			want := entry.Tx
			req := CallRequest{
				Schema:    want.Schema,
				Procedure: want.Procedure,
				Args:      want.Args,
				Caller:    want.Caller,
				TxID:      want.TxID,
				Height:    want.Height,
			}
			receipt, callErr := e.Call(ctx, req)
			report.Calls++

			if callErr != nil {
				fe := fault.As(callErr)
				if fe.Kind == fault.Internal && want.ErrorKind != string(fault.Internal) {
					return report, fmt.Errorf("replay seq %d: %w", entry.Seq, callErr)
				}
				report.check(entry.Seq, want.TxID, "status", want.Status, "rolled_back")
				report.check(entry.Seq, want.TxID, "error_kind", want.ErrorKind, string(fe.Kind))
				report.check(entry.Seq, want.TxID, "error_message", want.ErrorMessage, fe.Message)
				continue
			}
			report.check(entry.Seq, want.TxID, "status", want.Status, "committed")
			report.check(entry.Seq, want.TxID, "result_hash", want.ResultHash, receipt.ResultHash)
			report.check(entry.Seq, want.TxID, "delta_digest", want.DeltaDigest, receipt.DeltaDigest)
		}
	}
	return report, nil
}

// ReplayReport summarizes a replay run.
type ReplayReport struct {
	Deployments int        `json:"deployments"`
	Calls       int        `json:"calls"`
	Mismatches  []Mismatch `json:"mismatches,omitempty"`
}

// OK reports whether every replayed entry matched.
func (r *ReplayReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Mismatch is one logged value that replay did not reproduce.
type Mismatch struct {
	Seq   int64  `json:"seq"`
	TxID  string `json:"tx_id,omitempty"`
	Field string `json:"field"`
	Want  string `json:"want"`
	Got   string `json:"got"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("seq %d tx %s: %s: want %q, got %q", m.Seq, m.TxID, m.Field, m.Want, m.Got)
}

func (r *ReplayReport) check(seq int64, txID, field, want, got string) {
	if want != got {
		r.add(seq, txID, field, want, got)
	}
}

func (r *ReplayReport) add(seq int64, txID, field, want, got string) {
	r.Mismatches = append(r.Mismatches, Mismatch{Seq: seq, TxID: txID, Field: field, Want: want, Got: got})
}
