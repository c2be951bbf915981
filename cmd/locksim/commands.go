package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/christophcemper/datasetlock"
	"github.com/christophcemper/datasetlock/internal/config"
	"github.com/christophcemper/datasetlock/internal/sim"
	"github.com/christophcemper/datasetlock/lockmetrics"
)

// --- Global Command Variables ---
var (
	configPath     string
	readers        int
	writers        int
	duration       time.Duration
	readHold       time.Duration
	writeHold      time.Duration
	depth          int
	warningTimeout time.Duration
	metricsAddr    string
	logLevel       string
	dumpInterval   time.Duration

	rootCmd = &cobra.Command{
		Use:   "locksim",
		Short: "Simulate reader/writer contention on a datasetlock",
		Long: `locksim starts reader and writer goroutines that share one data set
guarded by a reentrant read/write lock, checks that readers and writers never
overlap, and prints the lock statistics when the run ends.`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a contention simulation",
		RunE:  runSimulation,
	}

	initCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default simulation config as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}
)

func init() {
	flags := runCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file; flags override its values")
	flags.IntVar(&readers, "readers", 0, "number of reader goroutines")
	flags.IntVar(&writers, "writers", 0, "number of writer goroutines")
	flags.DurationVar(&duration, "duration", 0, "how long to run")
	flags.DurationVar(&readHold, "read-hold", 0, "read lock hold time per iteration")
	flags.DurationVar(&writeHold, "write-hold", 0, "write lock hold time per iteration")
	flags.IntVar(&depth, "depth", 0, "nested guards per iteration")
	flags.DurationVar(&warningTimeout, "warning-timeout", 0, "log slow acquisitions and long holds above this")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flags.DurationVar(&dumpInterval, "dump-interval", 0, "print the lock registry at this interval while running")

	rootCmd.AddCommand(runCmd, initCmd)
}

// resolveConfig loads the config file, if any, and applies changed flags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("readers") {
		cfg.Readers = readers
	}
	if flags.Changed("writers") {
		cfg.Writers = writers
	}
	if flags.Changed("duration") {
		cfg.Duration = duration
	}
	if flags.Changed("read-hold") {
		cfg.ReadHold = readHold
	}
	if flags.Changed("write-hold") {
		cfg.WriteHold = writeHold
	}
	if flags.Changed("depth") {
		cfg.ReentrantDepth = depth
	}
	if flags.Changed("warning-timeout") {
		cfg.WarningTimeout = warningTimeout
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	reg := prometheus.NewRegistry()
	promObserver := lockmetrics.NewPrometheusObserver(reg)
	provider, err := newMeterProvider(reg)
	if err != nil {
		return fmt.Errorf("init otel metrics: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("meter provider shutdown failed", "err", err)
		}
	}()
	otelObserver, err := lockmetrics.NewOTelObserver(provider.Meter("datasetlock"))
	if err != nil {
		return fmt.Errorf("init otel metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown()
	}
	if dumpInterval > 0 {
		go dumpRegistry(ctx, cmd.ErrOrStderr(), dumpInterval)
	}

	res, err := sim.New(cfg, logger, promObserver, otelObserver).Run(ctx)
	printResult(cmd.OutOrStdout(), cfg, res)
	return err
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "locksim.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", path)
	return nil
}

// newMeterProvider exports OpenTelemetry instruments through reg, next to the
// native Prometheus collectors, with an "otel" prefix.
func newMeterProvider(reg prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	exporter, err := promexporter.New(
		promexporter.WithRegisterer(reg),
		promexporter.WithNamespace("otel"),
	)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func dumpRegistry(ctx context.Context, w io.Writer, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintln(w, datasetlock.DumpAllLockInfo())
		}
	}
}

func printResult(w io.Writer, cfg config.Config, res sim.Result) {
	fmt.Fprintf(w, "=== locksim %s ===\n", cfg.LockName)
	fmt.Fprintf(w, "Elapsed: %v  Readers: %d  Writers: %d  Depth: %d\n",
		res.Elapsed.Round(time.Millisecond), cfg.Readers, cfg.Writers, cfg.ReentrantDepth)
	fmt.Fprintf(w, "Reads: %d  Writes: %d  Points: %d\n", res.Reads, res.Writes, res.Points)
	for _, typ := range []datasetlock.LockType{datasetlock.ReadLock, datasetlock.WriteLock} {
		st, ok := res.Stats[typ]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\n", typ)
		fmt.Fprintf(w, "  Total acquired: %d\n", st.TotalAcquired)
		fmt.Fprintf(w, "  Total contentions: %d\n", st.TotalContentions)
		fmt.Fprintf(w, "  Average hold time: %v\n", st.AverageTimeHeld())
		fmt.Fprintf(w, "  Max hold time: %v\n", st.MaxTimeHeld)
		fmt.Fprintf(w, "  Total wait time: %v\n", st.TotalWaitTime)
		fmt.Fprintf(w, "  Max wait time: %v\n", st.MaxWaitTime)
	}
}
