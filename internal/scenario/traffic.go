package scenario

import (
	"context"
	"log/slog"
	"time"

	"github.com/dantte-lp/faultline/internal/emu"
)

// DefaultTrafficGrace is the default pause between traffic flows.
const DefaultTrafficGrace = 2 * time.Second

// Flow describes one generator transfer between two hosts.
type Flow struct {
	// Source and Destination are host names.
	Source      string
	Destination string

	// Bandwidth is the generator target rate (e.g., "50M").
	Bandwidth string

	// Duration is the transfer length.
	Duration time.Duration
}

// VaryingTraffic runs a list of flows strictly in declared order. For each
// flow it starts a listener and a client, waits out the transfer, tears
// both ends down best-effort, and pauses for a grace period before the next
// flow. Total wall time is Σ(duration + grace).
type VaryingTraffic struct {
	// Flows are processed in order.
	Flows []Flow

	// Grace is the pause after each flow's teardown (default 2s).
	Grace time.Duration

	// Logger receives step-level progress. Optional.
	Logger *slog.Logger
}

// Name implements Scenario.
func (s VaryingTraffic) Name() string {
	return "varying-traffic"
}

// Run implements Scenario.
func (s VaryingTraffic) Run(ctx context.Context, net emu.Network, clk Clock) error {
	grace := s.Grace
	if grace <= 0 {
		grace = DefaultTrafficGrace
	}

	for _, flow := range s.Flows {
		if err := s.runFlow(ctx, net, clk, flow, grace); err != nil {
			return err
		}
	}

	return nil
}

func (s VaryingTraffic) runFlow(ctx context.Context, net emu.Network, clk Clock, flow Flow, grace time.Duration) error {
	dst, err := net.HostAddr(flow.Destination)
	if err != nil {
		logStep(s.Logger, s.Name(), "resolve destination", err)
		// Still honor the flow's time slot so ordering and pacing hold.
		if err := clk.Sleep(ctx, flow.Duration); err != nil {
			return err
		}
		return clk.Sleep(ctx, grace)
	}

	stepLogger(s.Logger).Info("starting traffic flow",
		slog.String("source", flow.Source),
		slog.String("destination", flow.Destination),
		slog.String("bandwidth", flow.Bandwidth),
		slog.Duration("duration", flow.Duration),
	)

	_, err = net.Exec(ctx, flow.Destination, serverCmd(trafficPort))
	logStep(s.Logger, s.Name(), "start listener", err)

	_, err = net.Exec(ctx, flow.Source, clientCmd(dst.Addr(), trafficPort, flow.Bandwidth, flow.Duration))
	logStep(s.Logger, s.Name(), "start client", err)

	if err := clk.Sleep(ctx, flow.Duration); err != nil {
		return err
	}

	_, err = net.Exec(ctx, flow.Source, killCmd())
	logStep(s.Logger, s.Name(), "kill source generator", err)

	_, err = net.Exec(ctx, flow.Destination, killCmd())
	logStep(s.Logger, s.Name(), "kill destination generator", err)

	return clk.Sleep(ctx, grace)
}
