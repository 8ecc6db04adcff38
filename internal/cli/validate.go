package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/schemahost/internal/engine"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Owner string
}

// FileValidation is the outcome for one source file.
type FileValidation struct {
	Path   string     `json:"path"`
	Schema string     `json:"schema,omitempty"`
	Valid  bool       `json:"valid"`
	Errors []CLIError `json:"errors,omitempty"`
}

// ValidationReport summarizes a validate run.
type ValidationReport struct {
	Files   []FileValidation `json:"files"`
	Valid   int              `json:"valid"`
	Invalid int              `json:"invalid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Statically check schema sources",
		Long: `Compile and validate every .cue file under the given files and
directories, reporting all problems instead of stopping at the first.

Exit codes:
  0 - All schemas are valid
  1 - At least one schema is invalid
  2 - Command error (path not found, no CUE files)

Example:
  schemahost validate ./schemas
  schemahost validate proxy.cue impl.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "validator", "deployer address used to derive schema ids")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := FindCUEFiles(paths...)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	report := ValidationReport{Files: make([]FileValidation, 0, len(files))}
	for _, path := range files {
		formatter.VerboseLog("Validating %s", path)
		fv := validateFile(path, opts.Owner)
		if fv.Valid {
			report.Valid++
		} else {
			report.Invalid++
		}
		report.Files = append(report.Files, fv)
	}

	if formatter.Format == "json" {
		status := "ok"
		if report.Invalid > 0 {
			status = "error"
		}
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(CLIResponse{Status: status, Data: report}); err != nil {
			return err
		}
	} else {
		for _, fv := range report.Files {
			if fv.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s (%s)\n", fv.Path, fv.Schema)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s\n", fv.Path)
			for _, e := range fv.Errors {
				fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.Code, e.Message)
			}
		}
		fmt.Fprintf(formatter.Writer, "\n%d valid, %d invalid\n", report.Valid, report.Invalid)
	}

	if report.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d schema(s) invalid", report.Invalid))
	}
	return nil
}

func validateFile(path, owner string) FileValidation {
	fv := FileValidation{Path: path}
	src, err := readSource(path)
	if err != nil {
		code, message := parseCompileError(err)
		fv.Errors = []CLIError{{Code: code, Message: message}}
		return fv
	}

	spec, err := engine.Compile(src, owner)
	if err == nil {
		fv.Valid = true
		fv.Schema = spec.Name
		return fv
	}

	if verrs := engine.ValidationErrors(err); len(verrs) > 0 {
		for _, v := range verrs {
			fv.Errors = append(fv.Errors, CLIError{Code: v.Code, Message: v.Field + ": " + v.Message})
		}
		return fv
	}
	code, message := parseCompileError(err)
	fv.Errors = []CLIError{{Code: code, Message: message}}
	return fv
}
