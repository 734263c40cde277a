package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/medledger/internal/config"
	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/orchestrator"
	"github.com/roach88/medledger/internal/store"
)

// app is the wired runtime a command operates on.
type app struct {
	cfg      *config.Config
	store    *store.Store
	client   *ledger.Client
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
}

// openApp opens the store and, when connect is set, the ledger connection.
// A ledger that cannot be reached leaves the client degraded rather than
// failing the command; operations needing it report NOT_INITIALIZED.
func openApp(ctx context.Context, opts *RootOptions, connect bool) (*app, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	slog.Debug("opening database", "path", cfg.DatabasePath)
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	client := ledger.NewClient(cfg.Ledger(), ledger.WithLogger(slog.Default()))
	if connect {
		// Failure is logged by the client; it stays degraded.
		_ = client.Start(ctx)
	}

	reg := prometheus.NewRegistry()
	orch := orchestrator.New(st, client,
		orchestrator.WithLogger(slog.Default()),
		orchestrator.WithRegisterer(reg),
		orchestrator.WithBatchConcurrency(cfg.BatchConcurrency),
	)

	return &app{cfg: cfg, store: st, client: client, orch: orch, registry: reg}, nil
}

// Close releases the ledger connection and the database.
func (a *app) Close() {
	if err := a.client.Stop(); err != nil {
		slog.Error("error closing ledger connection", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// commandContext returns the command's context cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// withCallTimeout overrides the configured ledger call timeout when d > 0.
func withCallTimeout(ctx context.Context, d time.Duration) context.Context {
	if d <= 0 {
		return ctx
	}
	return ledger.WithTimeout(ctx, d)
}
