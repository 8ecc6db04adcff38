package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/schemahost/internal/compiler"
	"github.com/roach88/schemahost/internal/engine"
	"github.com/roach88/schemahost/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Owner  string
	Output string // output file path
}

// SchemaSummary is the printable shape of a compiled or deployed schema.
type SchemaSummary struct {
	ID         ir.SchemaID        `json:"id"`
	Name       string             `json:"name"`
	Owner      string             `json:"owner"`
	Tables     []ir.TableDef      `json:"tables"`
	Stubs      []string           `json:"foreign"`
	Procedures []ProcedureSummary `json:"procedures"`
}

// ProcedureSummary is one procedure signature with its modifiers.
type ProcedureSummary struct {
	Signature string        `json:"signature"`
	Modifiers []ir.Modifier `json:"modifiers"`
}

func summarize(spec *ir.SchemaSpec) SchemaSummary {
	s := SchemaSummary{
		ID:         spec.ID,
		Name:       spec.Name,
		Owner:      spec.Owner,
		Tables:     spec.Tables,
		Stubs:      make([]string, len(spec.Stubs)),
		Procedures: make([]ProcedureSummary, len(spec.Procedures)),
	}
	for i, stub := range spec.Stubs {
		s.Stubs[i] = stub.Signature()
	}
	for i, p := range spec.Procedures {
		mods := p.Modifiers
		if mods == nil {
			mods = []ir.Modifier{}
		}
		s.Procedures[i] = ProcedureSummary{Signature: p.Signature(), Modifiers: mods}
	}
	return s
}

// String renders the summary for text output.
func (s SchemaSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s (owner %s)\n", s.ID, s.Name, s.Owner)
	for _, t := range s.Tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name + " " + string(c.Type)
		}
		fmt.Fprintf(&b, "  table %s(%s)", t.Name, strings.Join(cols, ", "))
		if len(t.PrimaryKey) > 0 {
			fmt.Fprintf(&b, " key(%s)", strings.Join(t.PrimaryKey, ", "))
		}
		b.WriteByte('\n')
	}
	for _, stub := range s.Stubs {
		fmt.Fprintf(&b, "  foreign %s\n", stub)
	}
	for _, p := range s.Procedures {
		mods := make([]string, len(p.Modifiers))
		for i, m := range p.Modifiers {
			mods[i] = string(m)
		}
		if len(mods) == 0 {
			mods = []string{"private"}
		}
		fmt.Fprintf(&b, "  procedure %s [%s]\n", p.Signature, strings.Join(mods, " "))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema.cue>",
		Short: "Compile and check a schema without deploying it",
		Long: `Compile a CUE schema source and run static validation.

Prints the schema id it would be deployed under for --owner, its tables,
foreign stubs and procedure signatures. Nothing is written to the database.

Example:
  schemahost compile ./schemas/proxy.cue --owner alice
  schemahost compile ./schemas/proxy.cue --owner alice -o proxy.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "deployer address the schema id is derived from (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled schema as JSON to this file")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
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
	formatter.VerboseLog("Compiling %s for %s", path, opts.Owner)

	spec, err := engine.Compile(src, opts.Owner)
	if err != nil {
		return outputCompileErrors(formatter, path, err)
	}

	if opts.Output != "" {
		if err := writeSpecToFile(spec, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	summary := summarize(spec)
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "✓ Compiled %s\n\n%s\n", path, summary)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote compiled schema to %s\n", opts.Output)
	}
	return nil
}

// outputLoadError reports an unreadable input as a command error.
func outputLoadError(formatter *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code = loadErr.Code
		_ = formatter.Error(code, loadErr.Message, nil)
	} else {
		_ = formatter.Error(code, err.Error(), nil)
	}
	return WrapExitError(ExitCommandError, code, err)
}

// outputCompileErrors reports a compile or validation failure. Each
// validation error is listed separately.
func outputCompileErrors(formatter *OutputFormatter, path string, err error) error {
	verrs := engine.ValidationErrors(err)
	if len(verrs) == 0 {
		code, message := parseCompileError(err)
		_ = formatter.Error(code, message, nil)
		return WrapExitError(ExitCommandError, "compilation failed", err)
	}

	if formatter.Format == "json" {
		_ = formatter.Error(verrs[0].Code, fmt.Sprintf("%s: %d validation error(s)", path, len(verrs)), verrs)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %s\n", path)
		for _, v := range verrs {
			fmt.Fprintf(formatter.Writer, "  %s\n", v.Error())
		}
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("validation failed with %d error(s)", len(verrs)))
}

// parseCompileError extracts a code and message from a compile failure.
// Positions are kept in the message.
func parseCompileError(err error) (string, string) {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return "E100", compileErr.Error()
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeSpecToFile writes the compiled schema, bodies included, as indented JSON.
func writeSpecToFile(spec *ir.SchemaSpec, filename string) error {
	out := struct {
		*ir.SchemaSpec
		Bodies map[string][]ir.Statement `json:"bodies"`
	}{SchemaSpec: spec, Bodies: map[string][]ir.Statement{}}
	for _, p := range spec.Procedures {
		out.Bodies[p.Name] = p.Body
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
