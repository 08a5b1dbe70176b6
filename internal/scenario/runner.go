package scenario

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dantte-lp/faultline/internal/emu"
)

// DefaultScenarioGap is the default settle delay inserted before each
// scenario, giving the system under test time to stabilize between
// perturbations.
const DefaultScenarioGap = 30 * time.Second

// -------------------------------------------------------------------------
// Runner state
// -------------------------------------------------------------------------

// Phase describes what the Runner is currently doing.
type Phase uint8

const (
	// PhaseIdle means Run has not started.
	PhaseIdle Phase = iota

	// PhaseWaiting means the Runner is in the settle delay before a scenario.
	PhaseWaiting

	// PhaseRunning means a scenario is executing.
	PhaseRunning

	// PhaseDone means the whole sequence finished or was abandoned.
	PhaseDone
)

// String returns the human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseRunning:
		return "running"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// State is a point-in-time snapshot of Runner progress.
type State struct {
	Phase     Phase
	Scenario  string
	Completed int
	Total     int
}

// -------------------------------------------------------------------------
// Metrics Hook
// -------------------------------------------------------------------------

// MetricsReporter receives scenario lifecycle events. Never nil inside the
// Runner — a no-op reporter is used when none is configured.
type MetricsReporter interface {
	// ScenarioStarted is called when a scenario begins executing.
	ScenarioStarted(name string)

	// ScenarioFinished is called when a scenario returns, with failed set
	// when it reported an error other than cancellation.
	ScenarioFinished(name string, failed bool)
}

type noopMetrics struct{}

func (noopMetrics) ScenarioStarted(string)        {}
func (noopMetrics) ScenarioFinished(string, bool) {}

// -------------------------------------------------------------------------
// Runner — sequential background scheduler
// -------------------------------------------------------------------------

// Runner executes a fixed scenario sequence strictly sequentially: exactly
// one scenario is active at any instant, each preceded by a settle delay.
// It is a best-effort companion to the interactive session — a failed
// scenario is logged and the sequence moves on, and cancellation abandons
// the in-flight scenario without surfacing an error.
//
// Run is meant to be launched on a daemon goroutine that process shutdown
// never waits on.
type Runner struct {
	net       emu.Network
	clk       Clock
	scenarios []Scenario
	gap       time.Duration
	logger    *slog.Logger
	metrics   MetricsReporter

	mu    sync.Mutex
	state State
}

// RunnerOption configures optional Runner parameters.
type RunnerOption func(*Runner)

// WithGap overrides the settle delay inserted before each scenario.
func WithGap(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.gap = d
		}
	}
}

// WithRunnerMetrics sets the MetricsReporter. A nil reporter is ignored.
func WithRunnerMetrics(mr MetricsReporter) RunnerOption {
	return func(r *Runner) {
		if mr != nil {
			r.metrics = mr
		}
	}
}

// NewRunner creates a Runner for the given scenario sequence.
func NewRunner(net emu.Network, clk Clock, scenarios []Scenario, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		net:       net,
		clk:       clk,
		scenarios: scenarios,
		gap:       DefaultScenarioGap,
		logger:    logger.With(slog.String("component", "scenario.runner")),
		metrics:   noopMetrics{},
		state:     State{Phase: PhaseIdle, Total: len(scenarios)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns a snapshot of the Runner's progress.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(phase Phase, scenario string, completed int) {
	r.mu.Lock()
	r.state = State{
		Phase:     phase,
		Scenario:  scenario,
		Completed: completed,
		Total:     len(r.scenarios),
	}
	r.mu.Unlock()
}

// Run executes the sequence until it completes or ctx is cancelled.
// Cancellation discards the in-flight scenario silently: interruption is
// the expected way a session ends, not a fault.
func (r *Runner) Run(ctx context.Context) {
	completed := 0
	defer func() { r.setState(PhaseDone, "", completed) }()

	for i, s := range r.scenarios {
		r.setState(PhaseWaiting, s.Name(), i)
		if err := r.clk.Sleep(ctx, r.gap); err != nil {
			return
		}

		r.setState(PhaseRunning, s.Name(), i)
		r.metrics.ScenarioStarted(s.Name())

		r.logger.Info("scenario starting",
			slog.String("scenario", s.Name()),
			slog.Int("index", i+1),
			slog.Int("total", len(r.scenarios)),
		)

		start := r.clk.Now()
		err := s.Run(ctx, r.net, r.clk)

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		r.metrics.ScenarioFinished(s.Name(), err != nil)

		completed = i + 1

		if err != nil {
			// No retry: log and continue to the next scenario.
			r.logger.Warn("scenario failed",
				slog.String("scenario", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}

		r.logger.Info("scenario complete",
			slog.String("scenario", s.Name()),
			slog.Duration("elapsed", r.clk.Now().Sub(start)),
		)
	}

	r.logger.Info("scenario sequence complete",
		slog.Int("scenarios", len(r.scenarios)),
	)
}
