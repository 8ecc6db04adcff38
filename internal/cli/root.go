package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/schemahost/internal/config"
)

// RootOptions holds global flags for all commands, and the settings they
// resolve to once the command starts.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the schemahost CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "schemahost",
		Short: "schemahost - immutable schemas behind upgradeable proxies",
		Long: `Deploy immutable CUE schemas and call their procedures.

A deployed schema never changes. Upgrades happen by pointing a proxy schema
at a new implementation: foreign calls are resolved against the target id
stored in the proxy's own tables, checked against the proxy's stub
signatures, and executed in one all-or-nothing transaction.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolve(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewSchemasCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// resolve loads the config file, applies flag overrides and builds the
// logger. Diagnostics go to stderr so stdout stays parseable.
func (o *RootOptions) resolve(stderr io.Writer) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	level, _ := cfg.Log.SlogLevel()
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(stderr, handlerOpts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(stderr, handlerOpts)
	}

	o.Config = cfg
	o.Logger = slog.New(handler)
	return nil
}

// settings returns the resolved config, falling back to defaults plus
// flag overrides when a subcommand runs without the root (tests).
func (o *RootOptions) settings() (config.Config, *slog.Logger) {
	if o.Logger != nil {
		return o.Config, o.Logger
	}
	cfg := config.Default()
	if o.Database != "" {
		cfg.Database = o.Database
	}
	return cfg, slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
