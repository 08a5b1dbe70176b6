package scenario

import (
	"context"
	"log/slog"
	"time"

	"github.com/dantte-lp/faultline/internal/emu"
)

// Default congestion parameters.
const (
	DefaultCongestionBandwidth = "900M"
	DefaultCongestionDuration  = 20 * time.Second
)

// Congestion floods one host pair with generator traffic for a fixed
// duration: a listener on the destination, a client on the source, then a
// best-effort kill on both ends whether or not the transfer completed.
type Congestion struct {
	// Source and Destination are host names.
	Source      string
	Destination string

	// Bandwidth is the generator target rate (e.g., "900M"). Default 900M.
	Bandwidth string

	// Duration is the transfer length (default 20s).
	Duration time.Duration

	// Logger receives step-level progress. Optional.
	Logger *slog.Logger
}

// Name implements Scenario.
func (s Congestion) Name() string {
	return "congestion"
}

// Run implements Scenario.
func (s Congestion) Run(ctx context.Context, net emu.Network, clk Clock) error {
	bw := s.Bandwidth
	if bw == "" {
		bw = DefaultCongestionBandwidth
	}
	dur := s.Duration
	if dur <= 0 {
		dur = DefaultCongestionDuration
	}

	dst, err := net.HostAddr(s.Destination)
	if err != nil {
		// Without a destination address there is no flow to generate.
		logStep(s.Logger, s.Name(), "resolve destination", err)
		return nil
	}

	stepLogger(s.Logger).Info("starting congestion flow",
		slog.String("source", s.Source),
		slog.String("destination", s.Destination),
		slog.String("bandwidth", bw),
		slog.Duration("duration", dur),
	)

	_, err = net.Exec(ctx, s.Destination, serverCmd(0))
	logStep(s.Logger, s.Name(), "start listener", err)

	_, err = net.Exec(ctx, s.Source, clientCmd(dst.Addr(), 0, bw, dur))
	logStep(s.Logger, s.Name(), "start client", err)

	if err := clk.Sleep(ctx, dur); err != nil {
		return err
	}

	// Kill the generator on both ends regardless of how the transfer went.
	_, err = net.Exec(ctx, s.Source, killCmd())
	logStep(s.Logger, s.Name(), "kill source generator", err)

	_, err = net.Exec(ctx, s.Destination, killCmd())
	logStep(s.Logger, s.Name(), "kill destination generator", err)

	return nil
}
