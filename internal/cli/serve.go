package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/schemahost/internal/engine"
	"github.com/roach88/schemahost/internal/metrics"
	"github.com/roach88/schemahost/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve deploy and call over HTTP",
		Long: `Start the HTTP API over the configured database.

Routes:
  GET  /health
  POST /schemas       deploy {source, owner}
  GET  /schemas       list deployed schemas
  GET  /schemas/{id}  show one schema
  POST /call          call a procedure, plain or as a signed envelope
  GET  /tx?limit=N    transaction log
  GET  /metrics       Prometheus metrics (server.metrics: true)

Calls are executed one at a time. SIGINT or SIGTERM shuts the server down
gracefully.

Example:
  schemahost serve --db ./host.db --addr :8484
  schemahost serve --config ./schemahost.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, logger := opts.settings()
	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	var extra []engine.Option
	if cfg.Server.Metrics {
		m = metrics.New()
		extra = append(extra, engine.WithMetrics(m))
	}

	sess, err := openSession(ctx, opts.RootOptions, extra...)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}()
	logger.Info("database ready", "path", cfg.Database, "schemas", sess.engine.Registry().Len())

	srvOpts := []server.Option{
		server.WithLogger(logger),
		server.RequireSignatures(cfg.Identity.RequireSignatures),
	}
	if m != nil {
		srvOpts = append(srvOpts, server.WithMetrics(m))
	}
	srv := server.New(sess.engine, srvOpts...)

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return WrapExitError(ExitCommandError, "server error", err)
	}
	logger.Info("server stopped")
	return nil
}
