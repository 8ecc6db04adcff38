package cli

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Limit int
	TxID  string
}

// TxDetail is one logged call with its storage deltas.
type TxDetail struct {
	ir.TxRecord
	Deltas []ir.Mutation `json:"deltas"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the transaction log",
		Long: `Show logged calls in sequence order, committed and rolled back.

With --tx, show one call with every storage delta it committed.

Example:
  schemahost trace --db ./host.db --limit 20
  schemahost trace --db ./host.db --tx 0190f3b2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the last N calls (0 = all)")
	cmd.Flags().StringVar(&opts.TxID, "tx", "", "show a single transaction with its deltas")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Limit < 0 {
		_ = formatter.Error(ErrCodeBadArgs, "--limit must be non-negative", nil)
		return NewExitError(ExitCommandError, "--limit must be non-negative")
	}

	cfg, _ := opts.settings()
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()
	ctx := cmd.Context()

	if opts.TxID != "" {
		rec, err := st.ReadTx(ctx, opts.TxID)
		if errors.Is(err, sql.ErrNoRows) {
			_ = formatter.Error(ErrCodeNotFound, "transaction not found: "+opts.TxID, nil)
			return NewExitError(ExitCommandError, "transaction not found: "+opts.TxID)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transaction", err)
		}
		deltas, err := st.ReadMutations(ctx, rec.Seq)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read deltas", err)
		}
		if deltas == nil {
			deltas = []ir.Mutation{}
		}
		detail := TxDetail{TxRecord: rec, Deltas: deltas}
		if formatter.Format == "json" {
			return formatter.Success(detail)
		}
		printTxDetail(formatter, detail)
		return nil
	}

	records, err := st.ReadTxLog(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transaction log", err)
	}
	if records == nil {
		records = []ir.TxRecord{}
	}
	if formatter.Format == "json" {
		return formatter.Success(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(formatter.Writer, "No transactions logged.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintln(formatter.Writer, traceLine(rec))
	}
	return nil
}

// traceLine renders one record on a single line.
func traceLine(rec ir.TxRecord) string {
	line := fmt.Sprintf("[%d] h=%d %s %s.%s %s by %s -> %s",
		rec.Seq, rec.Height, rec.TxID, rec.Schema, rec.Procedure, ir.Format(nonNil(rec.Args)), rec.Caller, rec.Status)
	if rec.ErrorKind != "" {
		return line + fmt.Sprintf(" (%s: %s)", rec.ErrorKind, rec.ErrorMessage)
	}
	return line + fmt.Sprintf(" (%d mutation(s))", rec.Mutations)
}

func printTxDetail(formatter *OutputFormatter, d TxDetail) {
	w := formatter.Writer
	fmt.Fprintln(w, traceLine(d.TxRecord))
	if out := formatResult(d.Result); out != "" {
		fmt.Fprintf(w, "result:\n%s\n", out)
	}
	if d.ResultHash != "" {
		fmt.Fprintf(w, "result_hash: %s\ndelta_digest: %s\n", d.ResultHash, d.DeltaDigest)
	}
	for i, m := range d.Deltas {
		fmt.Fprintf(w, "  #%d %s %s.%s affected=%d", i, m.Op, m.Schema, m.Table, m.Affected)
		if m.Values != nil {
			fmt.Fprintf(w, " values=%s", ir.Format(m.Values))
		}
		if m.Where != nil {
			fmt.Fprintf(w, " where=%s", ir.Format(m.Where))
		}
		fmt.Fprintln(w)
	}
}

func nonNil(a ir.IRArray) ir.IRArray {
	if a == nil {
		return ir.IRArray{}
	}
	return a
}
