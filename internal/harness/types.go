package harness

import (
	"github.com/roach88/schemahost/internal/ir"
)

// Trace phases.
const (
	PhaseSetup = "setup"
	PhaseFlow  = "flow"
)

// TraceEvent is one call made by a scenario, as recorded in the
// transaction log.
type TraceEvent struct {
	Seq       int64      `json:"seq"`
	Phase     string     `json:"phase"`
	Call      string     `json:"call"`
	Caller    string     `json:"caller"`
	Height    int64      `json:"height"`
	TxID      string     `json:"tx_id"`
	Args      ir.IRArray `json:"args"`
	Status    string     `json:"status"`
	Kind      string     `json:"kind,omitempty"`
	Message   string     `json:"message,omitempty"`
	Result    ir.Result  `json:"result"`
	Mutations int        `json:"mutations"`
}

// Result is the outcome of one scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// State holds the final rows of every scenario table, keyed
	// alias.table, in primary key order.
	State map[string][]ir.IRObject `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]ir.IRObject),
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a call to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
