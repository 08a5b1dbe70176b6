package scenario_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dantte-lp/faultline/internal/emu"
	"github.com/dantte-lp/faultline/internal/emu/emutest"
	"github.com/dantte-lp/faultline/internal/scenario"
)

// fakeScenario records its execution and optionally fails or runs a hook.
type fakeScenario struct {
	name string
	err  error
	hook func(ctx context.Context)

	log *callLog
}

type callLog struct {
	mu    sync.Mutex
	names []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func (f fakeScenario) Name() string { return f.name }

func (f fakeScenario) Run(ctx context.Context, _ emu.Network, _ scenario.Clock) error {
	if f.log != nil {
		f.log.add(f.name)
	}
	if f.hook != nil {
		f.hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.err
}

// fakeRunnerMetrics records scenario lifecycle callbacks.
type fakeRunnerMetrics struct {
	mu       sync.Mutex
	started  []string
	finished []string
	failed   []bool
}

func (m *fakeRunnerMetrics) ScenarioStarted(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, name)
}

func (m *fakeRunnerMetrics) ScenarioFinished(name string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, name)
	m.failed = append(m.failed, failed)
}

func TestRunnerSequence(t *testing.T) {
	t.Parallel()

	drv := &emutest.Driver{Topo: buildTopology(t)}
	clk := manualClock()
	log := &callLog{}
	mr := &fakeRunnerMetrics{}

	scenarios := []scenario.Scenario{
		fakeScenario{name: "first", log: log},
		fakeScenario{name: "second", log: log},
		fakeScenario{name: "third", log: log},
	}

	r := scenario.NewRunner(drv, clk, scenarios, discardLogger(),
		scenario.WithGap(30*time.Second),
		scenario.WithRunnerMetrics(mr),
	)
	r.Run(context.Background())

	got := log.list()
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("ran %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("run order %v, want %v", got, want)
			break
		}
	}

	// One settle gap before every scenario, including the first.
	sleeps := clk.Sleeps()
	if len(sleeps) != 3 {
		t.Fatalf("got %d sleeps, want 3: %v", len(sleeps), sleeps)
	}
	for i, d := range sleeps {
		if d != 30*time.Second {
			t.Errorf("sleep %d = %v, want 30s", i, d)
		}
	}

	state := r.State()
	if state.Phase != scenario.PhaseDone || state.Completed != 3 || state.Total != 3 {
		t.Errorf("final state = %+v", state)
	}

	if len(mr.started) != 3 || len(mr.finished) != 3 {
		t.Errorf("metrics: started=%v finished=%v", mr.started, mr.finished)
	}
}

func TestRunnerContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	drv := &emutest.Driver{Topo: buildTopology(t)}
	clk := manualClock()
	log := &callLog{}
	mr := &fakeRunnerMetrics{}

	scenarios := []scenario.Scenario{
		fakeScenario{name: "broken", err: errors.New("boom"), log: log},
		fakeScenario{name: "after", log: log},
	}

	r := scenario.NewRunner(drv, clk, scenarios, discardLogger(),
		scenario.WithGap(0),
		scenario.WithRunnerMetrics(mr),
	)
	r.Run(context.Background())

	got := log.list()
	if len(got) != 2 || got[1] != "after" {
		t.Errorf("ran %v, want [broken after]", got)
	}

	if len(mr.failed) != 2 || !mr.failed[0] || mr.failed[1] {
		t.Errorf("failure flags = %v, want [true false]", mr.failed)
	}

	if state := r.State(); state.Completed != 2 {
		t.Errorf("completed = %d, want 2 (failures still count as attempted)", state.Completed)
	}
}

func TestRunnerAbandonsOnCancel(t *testing.T) {
	t.Parallel()

	drv := &emutest.Driver{Topo: buildTopology(t)}
	clk := manualClock()
	log := &callLog{}
	mr := &fakeRunnerMetrics{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scenarios := []scenario.Scenario{
		fakeScenario{name: "first", log: log},
		fakeScenario{name: "cancelled", log: log, hook: func(context.Context) { cancel() }},
		fakeScenario{name: "never", log: log},
	}

	r := scenario.NewRunner(drv, clk, scenarios, discardLogger(),
		scenario.WithGap(0),
		scenario.WithRunnerMetrics(mr),
	)
	r.Run(ctx)

	got := log.list()
	if len(got) != 2 || got[1] != "cancelled" {
		t.Errorf("ran %v, want [first cancelled]", got)
	}

	// The abandoned scenario is not reported finished.
	if len(mr.finished) != 1 || mr.finished[0] != "first" {
		t.Errorf("finished = %v, want [first]", mr.finished)
	}

	state := r.State()
	if state.Phase != scenario.PhaseDone || state.Completed != 1 {
		t.Errorf("final state = %+v", state)
	}
}

func TestRunnerCancelledDuringGap(t *testing.T) {
	t.Parallel()

	drv := &emutest.Driver{Topo: buildTopology(t)}
	log := &callLog{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scenarios := []scenario.Scenario{fakeScenario{name: "never", log: log}}

	r := scenario.NewRunner(drv, manualClock(), scenarios, discardLogger())
	r.Run(ctx)

	if got := log.list(); len(got) != 0 {
		t.Errorf("ran %v, want nothing", got)
	}
	if state := r.State(); state.Phase != scenario.PhaseDone || state.Completed != 0 {
		t.Errorf("final state = %+v", state)
	}
}

func TestRunnerInitialState(t *testing.T) {
	t.Parallel()

	drv := &emutest.Driver{Topo: buildTopology(t)}
	r := scenario.NewRunner(drv, manualClock(), []scenario.Scenario{
		fakeScenario{name: "pending"},
	}, discardLogger())

	state := r.State()
	if state.Phase != scenario.PhaseIdle || state.Completed != 0 || state.Total != 1 {
		t.Errorf("initial state = %+v", state)
	}
}

func TestPhaseString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phase scenario.Phase
		want  string
	}{
		{scenario.PhaseIdle, "idle"},
		{scenario.PhaseWaiting, "waiting"},
		{scenario.PhaseRunning, "running"},
		{scenario.PhaseDone, "done"},
		{scenario.Phase(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
