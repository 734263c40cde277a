package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/medledger/internal/record"
)

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Continuously verify records and serve metrics",
		Long: `Run until interrupted. Every monitor interval, PENDING records are
resubmitted (resolving timed out submissions) and every linked record is
verified against the ledger, so tampering is flagged without anyone asking.
Prometheus metrics are served on the configured metrics address at /metrics.

With --once a single sweep runs and no metrics server is started.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if once {
				report, err := a.sweep(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "sweep failed", err)
				}
				if err := rootOpts.formatter(cmd.OutOrStdout()).Success(report); err != nil {
					return err
				}
				if report.Failed > 0 {
					return NewExitError(ExitFailure, "some records did not verify")
				}
				return nil
			}
			return a.monitor(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")

	return cmd
}

// sweep retries pending submissions, then verifies every linked record.
func (a *app) sweep(ctx context.Context) (VerifyReport, error) {
	pending, err := a.store.FindByState(ctx, record.StatePending)
	if err != nil {
		return VerifyReport{}, err
	}
	if len(pending) > 0 {
		ids := make([]int64, len(pending))
		for i, r := range pending {
			ids[i] = r.ID
		}
		res := a.orch.BatchSubmit(ctx, ids)
		slog.Info("retried pending submissions", "committed", len(res.Succeeded), "failed", len(res.Failed))
	}

	ids, err := linkedRecordIDs(ctx, a.store)
	if err != nil {
		return VerifyReport{}, err
	}
	report := verifyAll(ctx, a.orch, a.store, ids)
	slog.Info("verification sweep", "verified", report.Verified, "failed", report.Failed)
	return report, nil
}

func (a *app) monitor(ctx context.Context) error {
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("serving metrics", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.MonitorInterval)
		defer ticker.Stop()
		for {
			if _, err := a.sweep(ctx); err != nil && ctx.Err() == nil {
				slog.Error("sweep failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "monitor error", err)
	}
	slog.Info("monitor stopped gracefully")
	return nil
}
