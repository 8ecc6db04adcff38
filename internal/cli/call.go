package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/schemahost/internal/engine"
	"github.com/roach88/schemahost/internal/identity"
	"github.com/roach88/schemahost/internal/ir"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Args   string
	Caller string
	Key    string
	Height int64
	TxID   string
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <schema-id> <procedure>",
		Short: "Call a procedure of a deployed schema",
		Long: `Call a procedure as a top-level transaction.

Arguments are a JSON array matched to the procedure's parameters by
position. The caller is either named with --caller or derived from an
ed25519 key given as a hex seed with --key, in which case the call is
signed and verified before it runs.

The height defaults to one past the highest logged height.

Example:
  schemahost call x3f... create_user --args '["carol"]' --caller bob
  schemahost call x3f... get_users --key 9d61b19d... --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, ir.SchemaID(args[0]), args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "[]", "positional arguments as a JSON array")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "caller address")
	cmd.Flags().StringVar(&opts.Key, "key", "", "hex ed25519 seed to sign the call with")
	cmd.Flags().Int64Var(&opts.Height, "height", 0, "logical block height (default: next)")
	cmd.Flags().StringVar(&opts.TxID, "txid", "", "transaction id (default: generated)")

	return cmd
}

func runCall(opts *CallOptions, schema ir.SchemaID, procedure string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	var args ir.IRArray
	if err := json.Unmarshal([]byte(opts.Args), &args); err != nil {
		_ = formatter.Error(ErrCodeBadArgs, fmt.Sprintf("invalid --args JSON: %v", err), nil)
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}

	sess, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	height := opts.Height
	if height == 0 {
		last, err := sess.store.LastHeight(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read height", err)
		}
		height = last + 1
	}

	req := engine.CallRequest{
		Schema:    schema,
		Procedure: procedure,
		Args:      args,
		Caller:    opts.Caller,
		TxID:      opts.TxID,
		Height:    height,
	}
	if err := opts.authenticate(&req); err != nil {
		_ = formatter.Error(ErrCodeBadArgs, err.Error(), nil)
		return WrapExitError(ExitCommandError, "caller identity", err)
	}
	formatter.VerboseLog("Calling %s.%s as %s at height %d", schema, procedure, req.Caller, height)

	receipt, err := sess.engine.Call(ctx, req)
	if err != nil {
		_ = formatter.Fault(err)
		return faultExit("call rolled back", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(receipt)
	}
	fmt.Fprintf(formatter.Writer, "✓ committed seq %d tx %s (%d mutation(s), depth %d)\n",
		receipt.Seq, receipt.TxID, receipt.Mutations, receipt.Depth)
	if out := formatResult(receipt.Result); out != "" {
		fmt.Fprintln(formatter.Writer, out)
	}
	return nil
}

// authenticate fills in the caller. With --key the request is signed and
// the caller is the verified public key.
func (o *CallOptions) authenticate(req *engine.CallRequest) error {
	cfg, _ := o.settings()
	if o.Key == "" {
		if cfg.Identity.RequireSignatures {
			return fmt.Errorf("signatures are required: pass --key")
		}
		if req.Caller == "" {
			return fmt.Errorf("one of --caller or --key is required")
		}
		return nil
	}

	signer, err := identity.NewSigner(o.Key)
	if err != nil {
		return fmt.Errorf("--key: %w", err)
	}
	if req.TxID == "" {
		// The signature covers the tx id, so it is fixed before signing.
		req.TxID = engine.UUIDv7Generator{}.Generate()
	}
	env, err := signer.Sign(identity.Payload{
		Schema:    req.Schema,
		Procedure: req.Procedure,
		Args:      ir.IRArray(req.Args),
		TxID:      req.TxID,
		Height:    req.Height,
	})
	if err != nil {
		return err
	}
	caller, err := identity.Ed25519Provider{}.Caller(env)
	if err != nil {
		return err
	}
	if req.Caller != "" && req.Caller != caller {
		return fmt.Errorf("--caller %s does not match the key identity %s", req.Caller, caller)
	}
	req.Caller = caller
	return nil
}

// formatResult renders a result for text output: nothing for none, the
// value for a scalar, a tab separated table otherwise.
func formatResult(r ir.Result) string {
	switch r.Kind {
	case ir.ReturnScalar:
		return ir.Format(r.Value)
	case ir.ReturnTable:
		var b strings.Builder
		b.WriteString(strings.Join(r.Columns, "\t"))
		for _, row := range r.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = ir.Format(v)
			}
			b.WriteByte('\n')
			b.WriteString(strings.Join(cells, "\t"))
		}
		return b.String()
	default:
		return ""
	}
}
