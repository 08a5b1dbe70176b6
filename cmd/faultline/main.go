// faultline -- fault-injection harness for emulated OpenFlow networks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/faultline/internal/config"
	"github.com/dantte-lp/faultline/internal/emu"
	netnsdrv "github.com/dantte-lp/faultline/internal/emu/netns"
	"github.com/dantte-lp/faultline/internal/harness"
	faultmetrics "github.com/dantte-lp/faultline/internal/metrics"
	"github.com/dantte-lp/faultline/internal/ovs"
	"github.com/dantte-lp/faultline/internal/scenario"
	"github.com/dantte-lp/faultline/internal/shell"
	"github.com/dantte-lp/faultline/internal/topo"
	appversion "github.com/dantte-lp/faultline/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics server to
// drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	headless := flag.Bool("headless", false, "run scenarios without the interactive session")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("faultline"))
		return 0
	}

	// 2. Load config. An empty path runs on defaults.
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("faultline starting",
		slog.String("version", appversion.Version),
		slog.String("controller", cfg.Controller.Addr()),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	// 4. Build and validate the topology. A malformed topology is the one
	// fatal pre-start error.
	top, err := topo.Build(cfg.Topology)
	if err != nil {
		logger.Error("invalid topology", slog.String("error", err.Error()))
		return 1
	}

	// 5. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := faultmetrics.NewCollector(reg)

	// 6. Run the harness.
	if err := runHarness(cfg, top, collector, reg, logger, *headless); err != nil {
		logger.Error("faultline exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("faultline stopped")
	return 0
}

// runHarness wires the driver, scenarios, session, and metrics server
// together under an errgroup with signal-aware shutdown.
func runHarness(
	cfg *config.Config,
	top *topo.Topology,
	collector *faultmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	headless bool,
) error {
	drv := netnsdrv.NewDriver(cfg.Controller.Addr(), logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
		defer cancel()

		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})

	opts := []harness.Option{
		harness.WithScenarios(buildScenarios(cfg, logger)),
		harness.WithSettle(cfg.Timing.Settle),
		harness.WithScenarioGap(cfg.Timing.ScenarioGap),
		harness.WithController(cfg.Controller.Addr(), cfg.Controller.WaitTimeout),
		harness.WithMetrics(collector),
	}

	if cfg.OVSDB.Enabled {
		opts = append(opts, harness.WithOVSVerifier(ovs.NewVerifier(cfg.OVSDB.Endpoint, logger)))
	}

	if !headless {
		opts = append(opts, harness.WithSession(
			func(ctx context.Context, network emu.Network, t *topo.Topology, runner *scenario.Runner) error {
				sess := shell.NewSession(network, t, logger, shell.WithRunner(runner))
				return sess.Run(ctx)
			},
		))
	}

	h := harness.New(drv, top, logger, opts...)

	g.Go(func() error {
		// When the harness run ends the whole process winds down.
		defer stop()
		return h.Run(gCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run harness: %w", err)
	}
	return nil
}

// buildScenarios assembles the background scenario sequence from the
// configuration, in the fixed order: flap, congestion, host failure,
// varying traffic.
func buildScenarios(cfg *config.Config, logger *slog.Logger) []scenario.Scenario {
	flows := make([]scenario.Flow, 0, len(cfg.Scenarios.Traffic.Flows))
	for _, f := range cfg.Scenarios.Traffic.Flows {
		flows = append(flows, scenario.Flow{
			Source:      f.Source,
			Destination: f.Destination,
			Bandwidth:   f.Bandwidth,
			Duration:    f.Duration,
		})
	}

	return []scenario.Scenario{
		&scenario.LinkFlapping{
			A:          cfg.Scenarios.Flap.LinkA,
			B:          cfg.Scenarios.Flap.LinkB,
			Iterations: cfg.Scenarios.Flap.Iterations,
			Dwell:      cfg.Scenarios.Flap.Dwell,
			Logger:     logger,
		},
		&scenario.Congestion{
			Source:      cfg.Scenarios.Congestion.Source,
			Destination: cfg.Scenarios.Congestion.Destination,
			Bandwidth:   cfg.Scenarios.Congestion.Bandwidth,
			Duration:    cfg.Scenarios.Congestion.Duration,
			Logger:      logger,
		},
		&scenario.HostFailure{
			Host:     cfg.Scenarios.HostFailure.Host,
			Downtime: cfg.Scenarios.HostFailure.Downtime,
			Logger:   logger,
		},
		&scenario.VaryingTraffic{
			Flows:  flows,
			Grace:  cfg.Scenarios.Traffic.Grace,
			Logger: logger,
		},
	}
}

// listenAndServe creates a TCP listener using the ListenConfig and serves
// HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
