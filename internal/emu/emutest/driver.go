// Package emutest provides a scripted in-memory Driver for tests. It
// records every call in order, supports failure injection per operation,
// and tracks concurrent use so tests can assert that engine access is
// serialized.
package emutest

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/dantte-lp/faultline/internal/emu"
	"github.com/dantte-lp/faultline/internal/topo"
)

// Call records one driver invocation.
type Call struct {
	// Op is one of "start", "stop", "pingall", "setlink", "exec".
	Op string

	// Link is "a-b" for setlink calls.
	Link string

	// State is the requested link state for setlink calls.
	State topo.LinkState

	// Host and Cmd are set for exec calls.
	Host string
	Cmd  string
}

// Driver is a fake emu.Driver.
//
// The zero value is usable; hooks may be set before the driver is shared
// with other goroutines.
type Driver struct {
	// Topo resolves HostAddr lookups. When nil, HostAddr fails.
	Topo *topo.Topology

	// Report is returned by PingAll when PingHook is nil.
	Report emu.Report

	// StartErr, LinkErr cause the corresponding operations to fail.
	StartErr error
	LinkErr  error

	// ExecHook, when set, decides the result of every Exec call.
	ExecHook func(host, cmd string) (string, error)

	// PingHook, when set, decides the result of every PingAll call.
	PingHook func() (emu.Report, error)

	mu      sync.Mutex
	calls   []Call
	started bool
	stops   int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// enter tracks operation concurrency for overlap assertions.
func (d *Driver) enter() func() {
	n := d.inFlight.Add(1)
	for {
		max := d.maxInFlight.Load()
		if n <= max || d.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	return func() { d.inFlight.Add(-1) }
}

func (d *Driver) record(c Call) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

// Start implements emu.Driver.
func (d *Driver) Start(_ context.Context, t *topo.Topology) error {
	defer d.enter()()
	d.record(Call{Op: "start"})
	if d.StartErr != nil {
		return d.StartErr
	}

	d.mu.Lock()
	d.started = true
	if d.Topo == nil {
		d.Topo = t
	}
	d.mu.Unlock()
	return nil
}

// Stop implements emu.Driver. Every call is counted, including redundant
// ones, so tests can assert the exactly-once teardown property.
func (d *Driver) Stop() error {
	defer d.enter()()
	d.record(Call{Op: "stop"})

	d.mu.Lock()
	d.stops++
	d.started = false
	d.mu.Unlock()
	return nil
}

// PingAll implements emu.Driver.
func (d *Driver) PingAll(context.Context) (emu.Report, error) {
	defer d.enter()()
	d.record(Call{Op: "pingall"})
	if d.PingHook != nil {
		return d.PingHook()
	}
	return d.Report, nil
}

// SetLinkState implements emu.Driver.
func (d *Driver) SetLinkState(_ context.Context, a, b string, state topo.LinkState) error {
	defer d.enter()()
	d.record(Call{Op: "setlink", Link: a + "-" + b, State: state})
	return d.LinkErr
}

// Exec implements emu.Driver.
func (d *Driver) Exec(_ context.Context, host, cmd string) (string, error) {
	defer d.enter()()
	d.record(Call{Op: "exec", Host: host, Cmd: cmd})
	if d.ExecHook != nil {
		return d.ExecHook(host, cmd)
	}
	return "", nil
}

// HostAddr implements emu.Driver.
func (d *Driver) HostAddr(host string) (netip.Prefix, error) {
	if d.Topo == nil {
		return netip.Prefix{}, fmt.Errorf("emutest: no topology for host %q", host)
	}
	h, err := d.Topo.Host(host)
	if err != nil {
		return netip.Prefix{}, err
	}
	return h.Addr, nil
}

// Calls returns a copy of all recorded calls in order.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsOf returns the recorded calls matching op, in order.
func (d *Driver) CallsOf(op string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// StopCount returns how many times Stop was invoked.
func (d *Driver) StopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

// MaxInFlight returns the highest number of driver operations that were
// ever active at the same instant.
func (d *Driver) MaxInFlight() int {
	return int(d.maxInFlight.Load())
}

var _ emu.Driver = (*Driver)(nil)
