// Package emu defines the contract between the harness core and the
// external network emulation engine, plus the Conductor that serializes
// access to it.
//
// The engine itself — virtual hosts, switches, links, the control-plane
// process — lives outside this module; implementations of Driver adapt it.
package emu

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/dantte-lp/faultline/internal/topo"
)

// -------------------------------------------------------------------------
// Driver Errors
// -------------------------------------------------------------------------

// Sentinel errors for driver operations.
var (
	// ErrNotStarted indicates an operation was issued before Start.
	ErrNotStarted = errors.New("network not started")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("network already started")

	// ErrLinkChange indicates the engine failed to apply a link state change.
	ErrLinkChange = errors.New("link state change failed")

	// ErrExec indicates a command failed to execute on a virtual host.
	ErrExec = errors.New("host command execution failed")
)

// -------------------------------------------------------------------------
// Connectivity Report
// -------------------------------------------------------------------------

// PairResult is the outcome of one reachability attempt between two hosts.
type PairResult struct {
	// Src and Dst are the host names probed.
	Src string
	Dst string

	// Reachable reports whether Dst answered Src.
	Reachable bool
}

// Report is the outcome of an all-pairs connectivity probe. Unreachable
// pairs are data, not faults: the adaptive system under test is exercised
// precisely by imperfect connectivity, so a probe never fails because of
// what it measured.
type Report struct {
	Pairs []PairResult
}

// ReachableCount returns the number of reachable pairs.
func (r Report) ReachableCount() int {
	n := 0
	for _, p := range r.Pairs {
		if p.Reachable {
			n++
		}
	}
	return n
}

// AllReachable reports whether every probed pair was reachable.
func (r Report) AllReachable() bool {
	return r.ReachableCount() == len(r.Pairs)
}

// String returns a compact "reachable/total" summary.
func (r Report) String() string {
	return fmt.Sprintf("%d/%d pairs reachable", r.ReachableCount(), len(r.Pairs))
}

// -------------------------------------------------------------------------
// Contracts
// -------------------------------------------------------------------------

// Network is the call surface shared by the scenario runner and the
// interactive session. All methods may block on external I/O; callers pass
// a context and must tolerate slow operations.
type Network interface {
	// PingAll probes reachability between every host pair. Unreachable
	// pairs appear in the report; the error covers probe mechanics only.
	PingAll(ctx context.Context) (Report, error)

	// SetLinkState brings the link between endpoints a and b up or down.
	// Failure wraps ErrLinkChange.
	SetLinkState(ctx context.Context, a, b string, state topo.LinkState) error

	// Exec runs a shell command on the named virtual host and returns its
	// combined output. Commands ending in "&" return without waiting.
	Exec(ctx context.Context, host, cmd string) (string, error)

	// HostAddr returns the host's address and netmask as declared.
	HostAddr(host string) (netip.Prefix, error)
}

// Driver is the full adapter contract implemented against the external
// emulation engine: the Network surface plus lifecycle control.
//
// Stop is idempotent; calling it on a stopped (or never-started) driver is
// a no-op. The harness relies on this to guarantee teardown exactly once
// on every exit path.
type Driver interface {
	Network

	// Start creates the emulated entities for the topology and brings the
	// network up. May block until the engine is ready.
	Start(ctx context.Context, t *topo.Topology) error

	// Stop tears the emulated network down, releasing every resource
	// Start acquired. Safe to call more than once.
	Stop() error
}

// -------------------------------------------------------------------------
// Metrics Hook
// -------------------------------------------------------------------------

// MetricsReporter receives notable driver events. Never nil inside the
// Conductor — a no-op reporter is used when none is configured.
type MetricsReporter interface {
	// RecordLinkTransition is called after a successful link state change.
	RecordLinkTransition(link string, state topo.LinkState)

	// RecordExec is called after a host command execution attempt.
	RecordExec(host string, failed bool)

	// RecordProbe is called with the outcome of a connectivity probe.
	RecordProbe(reachable, total int)
}

type noopMetrics struct{}

func (noopMetrics) RecordLinkTransition(string, topo.LinkState) {}
func (noopMetrics) RecordExec(string, bool)                     {}
func (noopMetrics) RecordProbe(int, int)                        {}
