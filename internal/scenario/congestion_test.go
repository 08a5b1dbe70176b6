package scenario_test

import (
	"context"
	"testing"
	"time"

	"github.com/dantte-lp/faultline/internal/emu/emutest"
	"github.com/dantte-lp/faultline/internal/scenario"
)

func TestCongestionFlow(t *testing.T) {
	t.Parallel()

	drv := &emutest.Driver{Topo: buildTopology(t)}
	clk := manualClock()

	s := scenario.Congestion{
		Source:      "h1",
		Destination: "h2",
		Bandwidth:   "900M",
		Duration:    20 * time.Second,
		Logger:      discardLogger(),
	}

	if err := s.Run(context.Background(), drv, clk); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	execs := drv.CallsOf("exec")
	if len(execs) != 4 {
		t.Fatalf("got %d exec calls, want 4: %+v", len(execs), execs)
	}

	if execs[0].Host != "h2" || execs[0].Cmd != "iperf -s &" {
		t.Errorf("listener = %+v", execs[0])
	}
	if execs[1].Host != "h1" || execs[1].Cmd != "iperf -c 10.0.0.2 -t 20 -b 900M &" {
		t.Errorf("client = %+v", execs[1])
	}
	if execs[2].Host != "h1" || execs[3].Host != "h2" {
		t.Errorf("teardown hosts = %s, %s, want h1 then h2", execs[2].Host, execs[3].Host)
	}

	if got := clk.Elapsed(); got != 20*time.Second {
		t.Errorf("elapsed = %v, want 20s", got)
	}
}

func TestCongestionUnknownDestination(t *testing.T) {
	t.Parallel()

	drv := &emutest.Driver{Topo: buildTopology(t)}
	clk := manualClock()

	s := scenario.Congestion{
		Source:      "h1",
		Destination: "h9",
		Logger:      discardLogger(),
	}

	// A missing destination means no flow: the scenario degrades to a no-op.
	if err := s.Run(context.Background(), drv, clk); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := len(drv.CallsOf("exec")); got != 0 {
		t.Errorf("got %d exec calls, want 0", got)
	}
}

func TestCongestionSurvivesExecFailures(t *testing.T) {
	t.Parallel()

	drv := &emutest.Driver{
		Topo: buildTopology(t),
		ExecHook: func(host, cmd string) (string, error) {
			return "", context.DeadlineExceeded
		},
	}
	clk := manualClock()

	s := scenario.Congestion{
		Source:      "h1",
		Destination: "h2",
		Duration:    5 * time.Second,
		Logger:      discardLogger(),
	}

	// Step failures are logged and suppressed; the scenario still completes.
	if err := s.Run(context.Background(), drv, clk); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := len(drv.CallsOf("exec")); got != 4 {
		t.Errorf("got %d exec calls, want 4", got)
	}
}
