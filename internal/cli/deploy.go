package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/schemahost/internal/engine"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Owner string
}

// DeployResult is the JSON payload of a successful deploy.
type DeployResult struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy <schema.cue>",
		Short: "Deploy a schema",
		Long: `Compile, validate and deploy a schema source.

The schema id is derived from the schema name and --owner. Deploying the
same name for the same owner twice fails: deployed schemas are immutable.

Example:
  schemahost deploy --db ./host.db ./schemas/proxy.cue --owner alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "deployer address (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runDeploy(opts *DeployOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	src, err := readSource(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	sess, err := openSession(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	id, err := sess.engine.Deploy(cmd.Context(), src, opts.Owner)
	if err != nil {
		if verrs := engine.ValidationErrors(err); len(verrs) > 0 {
			return outputCompileErrors(formatter, path, err)
		}
		_ = formatter.Fault(err)
		return faultExit("deploy failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(DeployResult{ID: string(id), Path: path})
	}
	fmt.Fprintf(formatter.Writer, "✓ Deployed %s as %s\n", path, id)
	return nil
}
