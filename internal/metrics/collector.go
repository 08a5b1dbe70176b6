package faultmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/faultline/internal/topo"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace         = "faultline"
	subsystemNet      = "net"
	subsystemScenario = "scenario"
)

// Label names for emulation metrics.
const (
	labelLink     = "link"
	labelState    = "state"
	labelHost     = "host"
	labelResult   = "result"
	labelScenario = "scenario"
)

// Label values for the exec result label.
const (
	resultOK     = "ok"
	resultFailed = "failed"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Emulation Metrics
// -------------------------------------------------------------------------

// Collector holds all Prometheus metrics for the fault-injection harness.
//
//   - Link transition counters track every up/down change per link.
//   - Exec counters track host command volume and failures.
//   - Probe gauges expose the latest connectivity sweep result.
//   - Scenario counters record sequence progress for alerting on
//     repeatedly failing scenarios.
type Collector struct {
	// LinkTransitions counts link state changes, labeled with the link name
	// and the state the link was moved to.
	LinkTransitions *prometheus.CounterVec

	// ExecCommands counts commands executed on emulated hosts, labeled with
	// the host name and whether the command succeeded.
	ExecCommands *prometheus.CounterVec

	// ProbeReachablePairs holds the reachable pair count from the most
	// recent connectivity sweep.
	ProbeReachablePairs prometheus.Gauge

	// ProbeTotalPairs holds the total pair count from the most recent
	// connectivity sweep.
	ProbeTotalPairs prometheus.Gauge

	// OVSVerified reports whether the last OVSDB cross-check found every
	// expected bridge (1) or not (0).
	OVSVerified prometheus.Gauge

	// ScenariosStarted counts scenario executions per scenario name.
	ScenariosStarted *prometheus.CounterVec

	// ScenarioFailures counts scenario executions that returned an error,
	// per scenario name.
	ScenarioFailures *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against the
// provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics are created with the "faultline_" namespace prefix to avoid
// collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.LinkTransitions,
		c.ExecCommands,
		c.ProbeReachablePairs,
		c.ProbeTotalPairs,
		c.OVSVerified,
		c.ScenariosStarted,
		c.ScenarioFailures,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		LinkTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemNet,
			Name:      "link_transitions_total",
			Help:      "Total link state changes applied to the emulated network.",
		}, []string{labelLink, labelState}),

		ExecCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemNet,
			Name:      "exec_commands_total",
			Help:      "Total commands executed on emulated hosts.",
		}, []string{labelHost, labelResult}),

		ProbeReachablePairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemNet,
			Name:      "probe_reachable_pairs",
			Help:      "Reachable host pairs in the most recent connectivity sweep.",
		}),

		ProbeTotalPairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemNet,
			Name:      "probe_total_pairs",
			Help:      "Total host pairs probed in the most recent connectivity sweep.",
		}),

		OVSVerified: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemNet,
			Name:      "ovs_verified",
			Help:      "Whether the last OVSDB cross-check found every expected bridge (1) or not (0).",
		}),

		ScenariosStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScenario,
			Name:      "started_total",
			Help:      "Total scenario executions started by the background runner.",
		}, []string{labelScenario}),

		ScenarioFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScenario,
			Name:      "failures_total",
			Help:      "Total scenario executions that finished with an error.",
		}, []string{labelScenario}),
	}
}

// -------------------------------------------------------------------------
// Network Events
// -------------------------------------------------------------------------

// RecordLinkTransition increments the link transition counter for the given
// link and the state it was moved to.
func (c *Collector) RecordLinkTransition(link string, state topo.LinkState) {
	c.LinkTransitions.WithLabelValues(link, state.String()).Inc()
}

// RecordExec increments the exec counter for the given host. failed marks
// commands that returned an error.
func (c *Collector) RecordExec(host string, failed bool) {
	result := resultOK
	if failed {
		result = resultFailed
	}
	c.ExecCommands.WithLabelValues(host, result).Inc()
}

// RecordProbe stores the result of a connectivity sweep.
func (c *Collector) RecordProbe(reachable, total int) {
	c.ProbeReachablePairs.Set(float64(reachable))
	c.ProbeTotalPairs.Set(float64(total))
}

// RecordOVSVerification stores the outcome of an OVSDB bridge cross-check.
func (c *Collector) RecordOVSVerification(ok bool) {
	if ok {
		c.OVSVerified.Set(1)
		return
	}
	c.OVSVerified.Set(0)
}

// -------------------------------------------------------------------------
// Scenario Lifecycle
// -------------------------------------------------------------------------

// ScenarioStarted increments the started counter for the given scenario.
func (c *Collector) ScenarioStarted(name string) {
	c.ScenariosStarted.WithLabelValues(name).Inc()
}

// ScenarioFinished increments the failure counter when failed is set.
// Successful completions are derivable as started minus failures.
func (c *Collector) ScenarioFinished(name string, failed bool) {
	if failed {
		c.ScenarioFailures.WithLabelValues(name).Inc()
	}
}
