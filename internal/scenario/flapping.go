package scenario

import (
	"context"
	"log/slog"
	"time"

	"github.com/dantte-lp/faultline/internal/emu"
	"github.com/dantte-lp/faultline/internal/topo"
)

// Default link flapping parameters.
const (
	DefaultFlapIterations = 5
	DefaultFlapDwell      = 3 * time.Second
)

// LinkFlapping repeatedly takes one link down and back up:
//
//	down → wait(dwell) → up → wait(dwell), Iterations times.
//
// Exactly 2×Iterations state transitions are issued and the link always
// ends up, since the up transition closes every iteration.
type LinkFlapping struct {
	// A and B are the flapped link's endpoints.
	A string
	B string

	// Iterations is the number of down/up cycles (default 5).
	Iterations int

	// Dwell is the wait after each transition (default 3s).
	Dwell time.Duration

	// Logger receives step-level progress. Optional.
	Logger *slog.Logger
}

// Name implements Scenario.
func (s LinkFlapping) Name() string {
	return "link-flapping"
}

// Run implements Scenario.
func (s LinkFlapping) Run(ctx context.Context, net emu.Network, clk Clock) error {
	iters := s.Iterations
	if iters <= 0 {
		iters = DefaultFlapIterations
	}
	dwell := s.Dwell
	if dwell <= 0 {
		dwell = DefaultFlapDwell
	}

	log := stepLogger(s.Logger)

	for i := 1; i <= iters; i++ {
		log.Info("flapping link down",
			slog.String("link", s.A+"-"+s.B),
			slog.Int("iteration", i),
		)
		logStep(s.Logger, s.Name(), "link down", net.SetLinkState(ctx, s.A, s.B, topo.LinkDown))
		if err := clk.Sleep(ctx, dwell); err != nil {
			return err
		}

		log.Info("flapping link up",
			slog.String("link", s.A+"-"+s.B),
			slog.Int("iteration", i),
		)
		logStep(s.Logger, s.Name(), "link up", net.SetLinkState(ctx, s.A, s.B, topo.LinkUp))
		if err := clk.Sleep(ctx, dwell); err != nil {
			return err
		}
	}

	return nil
}
