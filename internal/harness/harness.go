// Package harness wires the emulated network, the background scenario
// sequence, and the foreground session into one run with a guaranteed
// teardown.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dantte-lp/faultline/internal/emu"
	"github.com/dantte-lp/faultline/internal/ovs"
	"github.com/dantte-lp/faultline/internal/scenario"
	"github.com/dantte-lp/faultline/internal/topo"
)

// controllerPollInterval is the retry interval while waiting for the
// OpenFlow controller socket.
const controllerPollInterval = 500 * time.Millisecond

// SessionFunc runs the foreground part of a harness run. The harness keeps
// the network alive until it returns.
type SessionFunc func(ctx context.Context, net emu.Network, t *topo.Topology, runner *scenario.Runner) error

// Metrics receives harness-level events. The prometheus Collector
// satisfies it.
type Metrics interface {
	emu.MetricsReporter
	scenario.MetricsReporter
	RecordOVSVerification(ok bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordLinkTransition(string, topo.LinkState) {}
func (noopMetrics) RecordExec(string, bool)                     {}
func (noopMetrics) RecordProbe(int, int)                        {}
func (noopMetrics) ScenarioStarted(string)                      {}
func (noopMetrics) ScenarioFinished(string, bool)               {}
func (noopMetrics) RecordOVSVerification(bool)                  {}

// -------------------------------------------------------------------------
// Harness
// -------------------------------------------------------------------------

// Harness owns one run of the fault-injection lifecycle: build the network,
// wait for the controller, probe connectivity, start the background
// scenario sequence, run the foreground session, and tear the network down
// exactly once no matter how the run ends.
type Harness struct {
	drv    emu.Driver
	t      *topo.Topology
	clk    scenario.Clock
	logger *slog.Logger

	metrics        Metrics
	scenarios      []scenario.Scenario
	settle         time.Duration
	gap            time.Duration
	controllerAddr string
	controllerWait time.Duration
	verifier       *ovs.Verifier
	session        SessionFunc

	stopOnce sync.Once
	stopErr  error
}

// Option configures optional Harness parameters.
type Option func(*Harness)

// WithClock overrides the clock used for settle delays. Defaults to the
// system clock.
func WithClock(clk scenario.Clock) Option {
	return func(h *Harness) {
		if clk != nil {
			h.clk = clk
		}
	}
}

// WithScenarios sets the background scenario sequence.
func WithScenarios(scenarios []scenario.Scenario) Option {
	return func(h *Harness) {
		h.scenarios = scenarios
	}
}

// WithSettle sets the delay between network start and the first
// connectivity probe.
func WithSettle(d time.Duration) Option {
	return func(h *Harness) {
		if d >= 0 {
			h.settle = d
		}
	}
}

// WithScenarioGap sets the delay inserted before each background scenario.
func WithScenarioGap(d time.Duration) Option {
	return func(h *Harness) {
		if d >= 0 {
			h.gap = d
		}
	}
}

// WithController makes startup wait until the OpenFlow controller at addr
// accepts TCP connections, up to the given timeout. A missing controller is
// logged, not fatal: switches reconnect on their own once it appears.
func WithController(addr string, timeout time.Duration) Option {
	return func(h *Harness) {
		h.controllerAddr = addr
		h.controllerWait = timeout
	}
}

// WithOVSVerifier enables the post-start OVSDB bridge cross-check.
func WithOVSVerifier(v *ovs.Verifier) Option {
	return func(h *Harness) {
		h.verifier = v
	}
}

// WithSession sets the foreground session. Without one the harness runs
// headless and ends when the scenario sequence finishes.
func WithSession(fn SessionFunc) Option {
	return func(h *Harness) {
		h.session = fn
	}
}

// WithMetrics sets the metrics sink. A nil sink is ignored.
func WithMetrics(m Metrics) Option {
	return func(h *Harness) {
		if m != nil {
			h.metrics = m
		}
	}
}

// New creates a Harness driving drv with topology t.
func New(drv emu.Driver, t *topo.Topology, logger *slog.Logger, opts ...Option) *Harness {
	h := &Harness{
		drv:     drv,
		t:       t,
		clk:     scenario.System(),
		logger:  logger.With(slog.String("component", "harness")),
		metrics: noopMetrics{},
		settle:  5 * time.Second,
		gap:     scenario.DefaultScenarioGap,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes the full lifecycle. The driver's Stop is invoked exactly
// once before Run returns, on every path including start failure.
func (h *Harness) Run(ctx context.Context) error {
	h.waitForController(ctx)

	h.logger.Info("starting emulated network",
		slog.Int("hosts", len(h.t.Hosts())),
		slog.Int("switches", len(h.t.Switches())),
		slog.Int("links", len(h.t.Links())),
	)

	if err := h.drv.Start(ctx, h.t); err != nil {
		// Start may have built partial state; Stop cleans it up.
		h.stop()
		return fmt.Errorf("start network: %w", err)
	}
	defer h.stop()

	// The conductor outlives ctx slightly so in-flight teardown-era calls
	// drain instead of deadlocking.
	condCtx, cancelCond := context.WithCancel(context.Background())
	defer cancelCond()

	cond := emu.NewConductor(h.drv, h.t, h.logger, emu.WithConductorMetrics(h.metrics))
	go cond.Run(condCtx)

	if h.settle > 0 {
		if err := h.clk.Sleep(ctx, h.settle); err != nil {
			return nil
		}
	}

	h.probe(ctx, cond)
	h.verifyOVS(ctx)

	runner := scenario.NewRunner(cond, h.clk, h.scenarios, h.logger,
		scenario.WithGap(h.gap),
		scenario.WithRunnerMetrics(h.metrics),
	)

	runnerCtx, cancelRunner := context.WithCancel(ctx)
	defer cancelRunner()

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Run(runnerCtx)
	}()

	if h.session != nil {
		if err := h.session(ctx, cond, h.t, runner); err != nil {
			return fmt.Errorf("interactive session: %w", err)
		}
		return nil
	}

	// Headless: run until the sequence finishes or shutdown is requested.
	select {
	case <-ctx.Done():
		return nil
	case <-runnerDone:
		return nil
	}
}

// stop tears the network down exactly once.
func (h *Harness) stop() {
	h.stopOnce.Do(func() {
		h.logger.Info("stopping emulated network")
		if err := h.drv.Stop(); err != nil {
			h.logger.Error("network teardown failed", slog.String("error", err.Error()))
			h.stopErr = err
			return
		}
		h.logger.Info("network stopped")
	})
}

// StopErr returns the teardown error, if any.
func (h *Harness) StopErr() error {
	return h.stopErr
}

// waitForController polls the controller socket until it accepts a
// connection or the timeout expires.
func (h *Harness) waitForController(ctx context.Context) {
	if h.controllerAddr == "" || h.controllerWait <= 0 {
		return
	}

	h.logger.Info("waiting for controller",
		slog.String("addr", h.controllerAddr),
		slog.Duration("timeout", h.controllerWait),
	)

	deadline := h.clk.Now().Add(h.controllerWait)
	dialer := &net.Dialer{Timeout: controllerPollInterval}

	for h.clk.Now().Before(deadline) {
		conn, err := dialer.DialContext(ctx, "tcp", h.controllerAddr)
		if err == nil {
			conn.Close()
			h.logger.Info("controller is up", slog.String("addr", h.controllerAddr))
			return
		}

		if ctx.Err() != nil {
			return
		}

		if err := h.clk.Sleep(ctx, controllerPollInterval); err != nil {
			return
		}
	}

	h.logger.Warn("controller not reachable, continuing without it",
		slog.String("addr", h.controllerAddr),
	)
}

// probe runs the post-settle connectivity sweep and compares it with the
// reachability the topology graph predicts. Discrepancies are logged only.
func (h *Harness) probe(ctx context.Context, network emu.Network) {
	report, err := network.PingAll(ctx)
	if err != nil {
		h.logger.Warn("connectivity probe failed", slog.String("error", err.Error()))
		return
	}

	// ExpectedReachable returns unordered pairs; the sweep probes both
	// directions of each.
	expected := 2 * len(h.t.ExpectedReachable())
	got := report.ReachableCount()

	h.logger.Info("connectivity probe",
		slog.String("result", report.String()),
		slog.Int("expected_reachable", expected),
	)

	if got < expected {
		h.logger.Warn("network has less connectivity than the topology predicts",
			slog.Int("reachable", got),
			slog.Int("expected", expected),
		)
	}
}

// verifyOVS cross-checks the switch fabric against OVSDB when configured.
func (h *Harness) verifyOVS(ctx context.Context) {
	if h.verifier == nil {
		return
	}

	res, err := h.verifier.Verify(ctx, h.t)
	if err != nil {
		h.logger.Warn("ovsdb verification failed", slog.String("error", err.Error()))
		h.metrics.RecordOVSVerification(false)
		return
	}

	h.metrics.RecordOVSVerification(res.OK())

	if res.OK() {
		h.logger.Info("ovsdb verification passed", slog.String("result", res.String()))
		return
	}

	h.logger.Warn("ovsdb verification found discrepancies",
		slog.String("result", res.String()),
	)
}
