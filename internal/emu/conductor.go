package emu

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/dantte-lp/faultline/internal/topo"
)

// -------------------------------------------------------------------------
// Conductor — single owner of the driver handle
// -------------------------------------------------------------------------

// Conductor is the sole owner of a Driver handle. The scenario runner and
// the interactive session both issue calls concurrently; instead of letting
// two goroutines race on the engine, every call is submitted to a command
// channel served by one goroutine, so engine operations execute strictly
// one at a time. Serialization does not change observable scenario
// behavior — callers still interleave, last write wins — it only removes
// the unsynchronized sharing of the handle itself.
//
// Run must be started before any call is issued.
type Conductor struct {
	drv     Driver
	t       *topo.Topology
	reqs    chan request
	logger  *slog.Logger
	metrics MetricsReporter
}

// request carries one unit of work to the conductor goroutine.
type request struct {
	fn   func(context.Context, Driver) error
	done chan error
}

// ConductorOption configures optional Conductor parameters.
type ConductorOption func(*Conductor)

// WithConductorMetrics sets the MetricsReporter. A nil reporter is ignored.
func WithConductorMetrics(mr MetricsReporter) ConductorOption {
	return func(c *Conductor) {
		if mr != nil {
			c.metrics = mr
		}
	}
}

// NewConductor creates a Conductor owning drv for topology t.
func NewConductor(drv Driver, t *topo.Topology, logger *slog.Logger, opts ...ConductorOption) *Conductor {
	c := &Conductor{
		drv:     drv,
		t:       t,
		reqs:    make(chan request),
		logger:  logger.With(slog.String("component", "emu.conductor")),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run serves submitted calls until ctx is cancelled. Exactly one Run
// goroutine may be active per Conductor.
func (c *Conductor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.reqs:
			req.done <- req.fn(ctx, c.drv)
		}
	}
}

// do submits fn and waits for its result. Returns the context error if the
// caller is cancelled before the call is accepted or completed.
func (c *Conductor) do(ctx context.Context, fn func(context.Context, Driver) error) error {
	req := request{fn: fn, done: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.reqs <- req:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-req.done:
		return err
	}
}

// -------------------------------------------------------------------------
// Network surface
// -------------------------------------------------------------------------

// PingAll probes all-pairs reachability through the serialized handle.
func (c *Conductor) PingAll(ctx context.Context) (Report, error) {
	var report Report
	err := c.do(ctx, func(ctx context.Context, drv Driver) error {
		var err error
		report, err = drv.PingAll(ctx)
		return err
	})
	if err != nil {
		// On caller cancellation the closure may still be running; the
		// captured report belongs to the conductor goroutine until the done
		// channel reports back, so only the zero value is safe to return.
		return Report{}, err
	}

	c.metrics.RecordProbe(report.ReachableCount(), len(report.Pairs))
	return report, nil
}

// SetLinkState applies a link state change and, on success, records the new
// state in the shared topology model.
func (c *Conductor) SetLinkState(ctx context.Context, a, b string, state topo.LinkState) error {
	err := c.do(ctx, func(ctx context.Context, drv Driver) error {
		return drv.SetLinkState(ctx, a, b, state)
	})
	if err != nil {
		c.logger.Warn("link state change failed",
			slog.String("link", a+"-"+b),
			slog.String("state", state.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	if serr := c.t.SetLinkState(a, b, state); serr != nil {
		// Driver accepted a link the model does not know. Log and move on;
		// the engine is authoritative.
		c.logger.Warn("link state not tracked in topology",
			slog.String("link", a+"-"+b),
			slog.String("error", serr.Error()),
		)
	}

	c.metrics.RecordLinkTransition(a+"-"+b, state)

	c.logger.Debug("link state changed",
		slog.String("link", a+"-"+b),
		slog.String("state", state.String()),
	)
	return nil
}

// Exec runs a command on a virtual host through the serialized handle.
func (c *Conductor) Exec(ctx context.Context, host, cmd string) (string, error) {
	var out string
	err := c.do(ctx, func(ctx context.Context, drv Driver) error {
		var err error
		out, err = drv.Exec(ctx, host, cmd)
		return err
	})
	c.metrics.RecordExec(host, err != nil)
	if err != nil {
		// Same discipline as PingAll: the captured output is not safe to
		// read until the closure has reported back.
		return "", err
	}
	return out, nil
}

// HostAddr resolves a host address. Reads no mutable engine state and is
// answered without going through the command channel.
func (c *Conductor) HostAddr(host string) (netip.Prefix, error) {
	return c.drv.HostAddr(host)
}

var _ Network = (*Conductor)(nil)
