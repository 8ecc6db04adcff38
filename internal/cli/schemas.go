package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/schemahost/internal/ir"
)

// NewSchemasCommand creates the schemas command.
func NewSchemasCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemas [schema-id]",
		Short: "List deployed schemas or show one",
		Long: `List every deployed schema in deployment order, or show the tables,
foreign stubs and procedure signatures of one schema.

Example:
  schemahost schemas --db ./host.db
  schemahost schemas --db ./host.db x3f09c...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var id ir.SchemaID
			if len(args) == 1 {
				id = ir.SchemaID(args[0])
			}
			return runSchemas(rootOpts, id, cmd)
		},
	}
	return cmd
}

func runSchemas(opts *RootOptions, id ir.SchemaID, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	sess, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer sess.Close()
	reg := sess.engine.Registry()

	if id != "" {
		desc, err := reg.Lookup(id)
		if err != nil {
			_ = formatter.Fault(err)
			return faultExit("schema lookup failed", err)
		}
		return formatter.Success(summarize(&desc.Spec))
	}

	descs := reg.List()
	summaries := make([]SchemaSummary, len(descs))
	for i, d := range descs {
		summaries[i] = summarize(&d.Spec)
	}
	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No schemas deployed.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "%s  %s (owner %s, %d procedure(s))\n", s.ID, s.Name, s.Owner, len(s.Procedures))
	}
	return nil
}
