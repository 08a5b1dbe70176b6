// Package scenario implements the timed perturbation scenarios applied to
// the running topology, and the Runner that executes them sequentially in
// the background while the interactive session holds the foreground.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/dantte-lp/faultline/internal/emu"
)

// Scenario is one scripted perturbation: a short deterministic sequence of
// engine calls interleaved with timed waits.
//
// Run returns an error only when execution was cancelled; individual step
// failures are logged and suppressed at the step boundary so one broken
// step never aborts the rest of the scenario, let alone the sequence.
type Scenario interface {
	// Name identifies the scenario in logs and metrics.
	Name() string

	// Run executes the scenario against net, pacing itself with clk.
	Run(ctx context.Context, net emu.Network, clk Clock) error
}

// -------------------------------------------------------------------------
// Step policy
// -------------------------------------------------------------------------

// stepLogger returns the scenario's step logger, falling back to the
// process default.
func stepLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// logStep logs a failed scenario step and swallows the error. Progression
// to the next step is the cross-cutting policy: a long-running session must
// stay observable, so nothing inside a scenario is allowed to escalate.
func logStep(l *slog.Logger, scenario, step string, err error) {
	if err == nil {
		return
	}
	stepLogger(l).Warn("scenario step failed",
		slog.String("scenario", scenario),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
}

// -------------------------------------------------------------------------
// Traffic generator invocations
// -------------------------------------------------------------------------

// trafficPort is the listener port used by the varying-traffic scenario.
// The plain congestion scenario uses the generator's default port.
const trafficPort = 5001

// serverCmd returns the traffic-generator server invocation. A port of 0
// keeps the generator default.
func serverCmd(port int) string {
	if port == 0 {
		return "iperf -s &"
	}
	return fmt.Sprintf("iperf -s -p %d &", port)
}

// clientCmd returns the traffic-generator client invocation targeting dst.
func clientCmd(dst netip.Addr, port int, bandwidth string, duration time.Duration) string {
	secs := int(duration.Seconds())
	if port == 0 {
		return fmt.Sprintf("iperf -c %s -t %d -b %s &", dst, secs, bandwidth)
	}
	return fmt.Sprintf("iperf -c %s -p %d -t %d -b %s &", dst, port, secs, bandwidth)
}

// killCmd terminates any generator process on a host. Always best-effort:
// the process may have exited on its own already.
func killCmd() string {
	return "killall -9 iperf 2>/dev/null"
}
