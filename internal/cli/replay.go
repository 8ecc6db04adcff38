package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/schemahost/internal/engine"
	"github.com/roach88/schemahost/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Into string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the log and verify determinism",
		Long: `Re-execute every deployment and call of the database against an empty
store and check that each call reproduces its logged status, error kind,
result hash and delta digest.

Exit codes:
  0 - Every entry reproduced
  1 - At least one entry diverged
  2 - Command error (database not found, destination not empty, etc.)

Examples:
  schemahost replay --db ./host.db
  schemahost replay --db ./host.db --into ./copy.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Into, "into", ":memory:", "empty database to replay into")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	cfg, logger := opts.settings()

	src, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer src.Close()
	dst, err := store.Open(opts.Into)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open replay destination", err)
	}
	defer dst.Close()

	formatter.VerboseLog("Replaying %s into %s", cfg.Database, opts.Into)
	report, err := engine.Replay(cmd.Context(), src, dst,
		engine.WithLogger(logger),
		engine.WithMaxCallDepth(cfg.Engine.MaxCallDepth),
	)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "Replayed %d deployment(s), %d call(s)\n", report.Deployments, report.Calls)
		for _, m := range report.Mismatches {
			fmt.Fprintf(formatter.Writer, "  ✗ %s\n", m)
		}
		if report.OK() {
			fmt.Fprintln(formatter.Writer, "✓ Deterministic")
		}
	}

	if !report.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d mismatch(es)", len(report.Mismatches)))
	}
	return nil
}
