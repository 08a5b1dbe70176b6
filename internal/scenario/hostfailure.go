package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dantte-lp/faultline/internal/emu"
)

// DefaultFailureDowntime is the default host outage length.
const DefaultFailureDowntime = 10 * time.Second

// HostFailure simulates a host outage by disabling its network interface,
// waiting, and bringing it back. Re-enabling the interface does not restore
// addressing, so the original IP address and netmask are explicitly
// reassigned afterwards.
type HostFailure struct {
	// Host is the failed host's name.
	Host string

	// Downtime is how long the interface stays down (default 10s).
	Downtime time.Duration

	// Logger receives step-level progress. Optional.
	Logger *slog.Logger
}

// Name implements Scenario.
func (s HostFailure) Name() string {
	return "host-failure"
}

// Run implements Scenario.
func (s HostFailure) Run(ctx context.Context, net emu.Network, clk Clock) error {
	downtime := s.Downtime
	if downtime <= 0 {
		downtime = DefaultFailureDowntime
	}

	addr, err := net.HostAddr(s.Host)
	if err != nil {
		// The address must be known up front or recovery cannot restore it.
		logStep(s.Logger, s.Name(), "resolve host address", err)
		return nil
	}

	iface := s.Host + "-eth0"

	stepLogger(s.Logger).Info("simulating host failure",
		slog.String("host", s.Host),
		slog.Duration("downtime", downtime),
	)

	_, err = net.Exec(ctx, s.Host, "ip link set "+iface+" down")
	logStep(s.Logger, s.Name(), "interface down", err)

	if err := clk.Sleep(ctx, downtime); err != nil {
		return err
	}

	stepLogger(s.Logger).Info("recovering host", slog.String("host", s.Host))

	_, err = net.Exec(ctx, s.Host, "ip link set "+iface+" up")
	logStep(s.Logger, s.Name(), "interface up", err)

	// Interface up alone may leave the host unaddressed; replace is
	// idempotent when the address survived the bounce.
	_, err = net.Exec(ctx, s.Host, fmt.Sprintf("ip addr replace %s dev %s", addr, iface))
	logStep(s.Logger, s.Name(), "restore address", err)

	return nil
}
