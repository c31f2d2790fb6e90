package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/pagefeed/internal/config"
	"github.com/roach88/pagefeed/internal/feed"
	"github.com/roach88/pagefeed/internal/producer"
)

// AssignOptions holds flags for the assign command.
type AssignOptions struct {
	*RootOptions
	Database    string
	Loop        bool
	Interval    time.Duration
	MetricsAddr string

	MaxBytesPerPage    int64
	MaxEntitiesPerPage int
	MaxEntitiesPerRun  int

	// PageIDs allows overriding the page id generator (for testing).
	// If nil, defaults to UUIDv7 page ids.
	PageIDs producer.PageIDGenerator
}

// AssignResult summarizes a single assign run.
type AssignResult struct {
	Assigned   int    `json:"assigned"`
	Pending    int    `json:"pending"`
	LatestPage string `json:"latest_page,omitempty"`
	Generation int64  `json:"generation"`
}

// NewAssignCommand creates the assign command.
func NewAssignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AssignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Fold unassigned entities into pages",
		Long: `Run the assign step: recover from an interrupted commit if one is
journaled, then pack unassigned entities into pages and publish them.

Only one assign process may run against a database at a time.

With --loop the step repeats every --interval until interrupted, and
immediately when a run filled a whole batch. --metrics-addr serves
Prometheus metrics while looping.

Examples:
  pagefeed assign --db ./feed.db
  pagefeed assign --db ./feed.db --max-bytes 65536 --format json
  pagefeed assign --config pagefeed.yaml --loop --interval 2s --metrics-addr :9102`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().BoolVar(&opts.Loop, "loop", false, "run continuously")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "pause between runs in loop mode (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics on this address in loop mode (overrides config)")
	cmd.Flags().Int64Var(&opts.MaxBytesPerPage, "max-bytes", 0, "max bytes per page (overrides config)")
	cmd.Flags().IntVar(&opts.MaxEntitiesPerPage, "max-entities", 0, "max entities per page (overrides config)")
	cmd.Flags().IntVar(&opts.MaxEntitiesPerRun, "max-run", 0, "max entities per run (overrides config)")

	return cmd
}

// applyOverrides copies explicitly set flags onto cfg.
func (o *AssignOptions) applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.Assign.Interval = o.Interval
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Listen = o.MetricsAddr
	}
	if flags.Changed("max-bytes") {
		cfg.Producer.MaxBytesPerPage = o.MaxBytesPerPage
	}
	if flags.Changed("max-entities") {
		cfg.Producer.MaxEntitiesPerPage = o.MaxEntitiesPerPage
	}
	if flags.Changed("max-run") {
		cfg.Producer.MaxEntitiesPerRun = o.MaxEntitiesPerRun
	}
}

func runAssign(opts *AssignOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	st, cfg, err := openStore(opts.RootOptions, opts.Database, formatter)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	opts.applyOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	metrics := producer.NewMetricsCollector()
	popts := []producer.Option{producer.WithLogger(logger), producer.WithMetrics(metrics)}
	if opts.PageIDs != nil {
		popts = append(popts, producer.WithPageIDGenerator(opts.PageIDs))
	}
	p, err := producer.New(st, st, st, cfg.Producer, popts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid producer limits", err)
	}

	ctx := commandContext(cmd)
	if opts.Loop {
		return runAssignLoop(ctx, p, metrics, cfg, logger, cmd.OutOrStdout())
	}

	n, err := p.AssignPages(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeAssign, "assign run failed", err)
	}

	result := AssignResult{Assigned: n}
	if result.Pending, err = st.CountUnassigned(ctx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRead, "failed to count unassigned entities", err)
	}
	candidates, err := st.GetWithoutNextLink(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRead, "failed to read latest page", err)
	}
	if latest := feed.SelectLatest(candidates); latest != nil {
		result.LatestPage = latest.PageID
		result.Generation = latest.Generation
	}

	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Assigned %d entities (%d pending)\n", result.Assigned, result.Pending)
		if result.LatestPage != "" {
			fmt.Fprintf(w, "  latest page %s (generation %d)\n", result.LatestPage, result.Generation)
		}
	})
}

func runAssignLoop(
	parent context.Context,
	p *producer.Producer,
	metrics *producer.Collector,
	cfg config.Config,
	logger *slog.Logger,
	out io.Writer,
) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics, collectors.NewGoCollector())
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		err := p.Run(gctx, cfg.Assign.Interval)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	fmt.Fprintf(out, "Producer started (interval %s). Press Ctrl-C to stop.\n", cfg.Assign.Interval)

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "producer error", err)
	}
	logger.Info("producer stopped gracefully")
	return nil
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
