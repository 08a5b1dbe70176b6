package netnsdrv

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/dantte-lp/faultline/internal/emu"
	"github.com/dantte-lp/faultline/internal/topo"
)

// PingAll probes every ordered host pair with a single ping. Pairs are
// probed one after another; an unreachable pair costs one ping timeout.
func (d *Driver) PingAll(ctx context.Context) (emu.Report, error) {
	d.mu.Lock()
	t := d.t
	started := d.started
	d.mu.Unlock()

	if !started {
		return emu.Report{}, emu.ErrNotStarted
	}

	var report emu.Report
	hosts := t.Hosts()

	for _, src := range hosts {
		for _, dst := range hosts {
			if src.Name == dst.Name {
				continue
			}

			cmd := fmt.Sprintf("ping -c1 -W1 %s", dst.Addr.Addr())
			_, err := d.Exec(ctx, src.Name, cmd)

			report.Pairs = append(report.Pairs, emu.PairResult{
				Src:       src.Name,
				Dst:       dst.Name,
				Reachable: err == nil,
			})

			if ctx.Err() != nil {
				return report, ctx.Err()
			}
		}
	}

	return report, nil
}

// SetLinkState brings the link's root-namespace veth ends up or down.
func (d *Driver) SetLinkState(_ context.Context, a, b string, state topo.LinkState) error {
	d.mu.Lock()
	ends, ok := d.linkEnds[linkKey(a, b)]
	started := d.started
	d.mu.Unlock()

	if !started {
		return emu.ErrNotStarted
	}
	if !ok {
		return fmt.Errorf("%s-%s: %w", a, b, topo.ErrUnknownLink)
	}

	for _, ifname := range ends {
		link, err := netlink.LinkByName(ifname)
		if err != nil {
			return fmt.Errorf("%w: lookup %s: %w", emu.ErrLinkChange, ifname, err)
		}

		op := netlink.LinkSetUp
		if state == topo.LinkDown {
			op = netlink.LinkSetDown
		}
		if err := op(link); err != nil {
			return fmt.Errorf("%w: set %s %s: %w", emu.ErrLinkChange, ifname, state, err)
		}
	}

	d.logger.Debug("link state applied",
		slog.String("link", a+"-"+b),
		slog.String("state", state.String()),
	)
	return nil
}

// Exec runs a shell command inside the host's namespace and returns its
// combined output.
func (d *Driver) Exec(ctx context.Context, host, cmd string) (string, error) {
	d.mu.Lock()
	t := d.t
	started := d.started
	d.mu.Unlock()

	if !started {
		return "", emu.ErrNotStarted
	}
	if _, err := t.Host(host); err != nil {
		return "", err
	}

	out, err := runCmd(ctx, "ip", "netns", "exec", nsName(host), "sh", "-c", shellCmd(cmd))
	if err != nil {
		return out, fmt.Errorf("%w: %q on %s: %w", emu.ErrExec, cmd, host, err)
	}
	return out, nil
}

// HostAddr returns the configured address of a host.
func (d *Driver) HostAddr(host string) (netip.Prefix, error) {
	d.mu.Lock()
	t := d.t
	d.mu.Unlock()

	if t == nil {
		return netip.Prefix{}, emu.ErrNotStarted
	}

	h, err := t.Host(host)
	if err != nil {
		return netip.Prefix{}, err
	}
	return h.Addr, nil
}
