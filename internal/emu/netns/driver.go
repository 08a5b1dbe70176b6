// Package netnsdrv implements emu.Driver on plain Linux primitives: one
// named network namespace per host, one Open vSwitch bridge per switch,
// veth pairs for links, and tc netem for link shaping.
//
// The driver shells out to ovs-vsctl, tc, and ip for the operations their
// netlink equivalents do not cover cleanly; everything else goes through
// the netlink library directly. Start requires root.
package netnsdrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/dantte-lp/faultline/internal/emu"
	"github.com/dantte-lp/faultline/internal/topo"
)

// ErrNotRoot indicates the driver was started without root privileges.
var ErrNotRoot = errors.New("netns driver requires root")

// nsPrefix namespaces the named netns entries this driver creates, so a
// crashed run is recognizable in /var/run/netns.
const nsPrefix = "fl-"

// Driver builds and drives an emulated network out of namespaces, OVS
// bridges, and veth pairs. It is not safe for concurrent use; the harness
// serializes access through a conductor.
type Driver struct {
	controller string
	logger     *slog.Logger

	mu         sync.Mutex
	t          *topo.Topology
	namespaces []string
	bridges    []string
	linkEnds   map[string][]string
	started    bool
}

// NewDriver creates a Driver. controller is the OpenFlow controller
// address as host:port; empty leaves the bridges standalone.
func NewDriver(controller string, logger *slog.Logger) *Driver {
	return &Driver{
		controller: controller,
		logger:     logger.With(slog.String("component", "emu.netns")),
		linkEnds:   make(map[string][]string),
	}
}

// Start builds the topology. On failure it returns immediately; the caller
// is expected to invoke Stop, which removes whatever was already built.
func (d *Driver) Start(ctx context.Context, t *topo.Topology) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return emu.ErrAlreadyStarted
	}

	if os.Geteuid() != 0 {
		return ErrNotRoot
	}

	d.t = t

	for _, h := range t.Hosts() {
		if err := d.createNamespace(h); err != nil {
			return fmt.Errorf("create host %s: %w", h.Name, err)
		}
	}

	for _, sw := range t.Switches() {
		if err := d.createBridge(ctx, sw); err != nil {
			return fmt.Errorf("create switch %s: %w", sw.Name, err)
		}
	}

	for _, l := range t.Links() {
		if err := d.createLink(ctx, t, l); err != nil {
			return fmt.Errorf("create link %s: %w", l.Name(), err)
		}
	}

	d.started = true
	d.logger.Info("network built",
		slog.Int("namespaces", len(d.namespaces)),
		slog.Int("bridges", len(d.bridges)),
		slog.Int("links", len(d.linkEnds)),
	)
	return nil
}

// Stop removes every resource the driver created. It is idempotent and
// keeps going on errors, returning them joined.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error

	for _, ends := range d.linkEnds {
		for _, ifname := range ends {
			if link, err := netlink.LinkByName(ifname); err == nil {
				if err := netlink.LinkDel(link); err != nil {
					errs = append(errs, fmt.Errorf("delete %s: %w", ifname, err))
				}
			}
		}
	}
	d.linkEnds = make(map[string][]string)

	for _, br := range d.bridges {
		if out, err := runCmd(context.Background(), "ovs-vsctl", "--if-exists", "del-br", br); err != nil {
			errs = append(errs, fmt.Errorf("delete bridge %s: %w (%s)", br, err, out))
		}
	}
	d.bridges = nil

	for _, ns := range d.namespaces {
		if err := netns.DeleteNamed(ns); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("delete namespace %s: %w", ns, err))
		}
	}
	d.namespaces = nil

	d.started = false
	return errors.Join(errs...)
}

// createNamespace creates the host's named namespace and brings up its
// loopback. netns.NewNamed moves the calling thread into the new
// namespace, so the thread is locked and restored around it.
func (d *Driver) createNamespace(h topo.Host) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origin, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get current namespace: %w", err)
	}
	defer origin.Close()

	name := nsName(h.Name)

	handle, err := netns.NewNamed(name)
	if err != nil {
		return fmt.Errorf("create namespace %s: %w", name, err)
	}
	defer handle.Close()

	d.namespaces = append(d.namespaces, name)

	if lo, err := netlink.LinkByName("lo"); err == nil {
		if err := netlink.LinkSetUp(lo); err != nil {
			netns.Set(origin)
			return fmt.Errorf("loopback up in %s: %w", name, err)
		}
	}

	if err := netns.Set(origin); err != nil {
		return fmt.Errorf("restore namespace: %w", err)
	}

	return nil
}

// createBridge creates an OVS bridge for sw, pins its datapath ID, and
// points it at the controller.
func (d *Driver) createBridge(ctx context.Context, sw topo.Switch) error {
	if out, err := runCmd(ctx, "ovs-vsctl", "add-br", sw.Name); err != nil {
		return fmt.Errorf("add-br: %w (%s)", err, out)
	}
	d.bridges = append(d.bridges, sw.Name)

	dpid := fmt.Sprintf("other-config:datapath-id=%s", sw.DPIDString())
	if out, err := runCmd(ctx, "ovs-vsctl", "set", "bridge", sw.Name, dpid); err != nil {
		return fmt.Errorf("set datapath-id: %w (%s)", err, out)
	}

	if d.controller != "" {
		target := "tcp:" + d.controller
		if out, err := runCmd(ctx, "ovs-vsctl", "set-controller", sw.Name, target); err != nil {
			return fmt.Errorf("set-controller: %w (%s)", err, out)
		}
	}

	return nil
}

// createLink builds the veth pair for l, places or attaches both ends, and
// applies shaping.
func (d *Driver) createLink(ctx context.Context, t *topo.Topology, l topo.Link) error {
	nameA := endName(l.A, l.B)
	nameB := endName(l.B, l.A)

	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: nameA},
		PeerName:  nameB,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return fmt.Errorf("create veth %s/%s: %w", nameA, nameB, err)
	}
	d.linkEnds[linkKey(l.A, l.B)] = rootEnds(t, l, nameA, nameB)

	if err := d.placeEnd(ctx, t, l.A, nameA); err != nil {
		return err
	}
	if err := d.placeEnd(ctx, t, l.B, nameB); err != nil {
		return err
	}

	for _, end := range d.linkEnds[linkKey(l.A, l.B)] {
		if err := d.shapeEnd(ctx, end, l); err != nil {
			return err
		}
	}

	return nil
}

// rootEnds returns the veth ends that remain in the root namespace. Host
// ends move into their namespace and are renamed, so only switch ends stay
// addressable here.
func rootEnds(t *topo.Topology, l topo.Link, nameA, nameB string) []string {
	var ends []string
	if _, err := t.Switch(l.A); err == nil {
		ends = append(ends, nameA)
	}
	if _, err := t.Switch(l.B); err == nil {
		ends = append(ends, nameB)
	}
	sort.Strings(ends)
	return ends
}

// placeEnd connects one veth end to the endpoint it belongs to: attached
// as an OVS port for switches, moved and addressed inside the namespace
// for hosts.
func (d *Driver) placeEnd(ctx context.Context, t *topo.Topology, endpoint, ifname string) error {
	if sw, err := t.Switch(endpoint); err == nil {
		if out, err := runCmd(ctx, "ovs-vsctl", "add-port", sw.Name, ifname); err != nil {
			return fmt.Errorf("add-port %s to %s: %w (%s)", ifname, sw.Name, err, out)
		}

		link, err := netlink.LinkByName(ifname)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", ifname, err)
		}
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("up %s: %w", ifname, err)
		}
		return nil
	}

	h, err := t.Host(endpoint)
	if err != nil {
		return err
	}
	return d.moveEndToHost(ifname, h)
}

// moveEndToHost moves a veth end into the host namespace, renames it to
// the canonical interface name, assigns the host address, and brings it up.
func (d *Driver) moveEndToHost(ifname string, h topo.Host) error {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", ifname, err)
	}

	nsHandle, err := netns.GetFromName(nsName(h.Name))
	if err != nil {
		return fmt.Errorf("open namespace for %s: %w", h.Name, err)
	}
	defer nsHandle.Close()

	if err := netlink.LinkSetNsFd(link, int(nsHandle)); err != nil {
		return fmt.Errorf("move %s into %s: %w", ifname, h.Name, err)
	}

	// The rest happens inside the host namespace through a scoped handle.
	nl, err := netlink.NewHandleAt(nsHandle)
	if err != nil {
		return fmt.Errorf("netlink handle for %s: %w", h.Name, err)
	}
	defer nl.Close()

	link, err = nl.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("lookup %s in %s: %w", ifname, h.Name, err)
	}

	if err := nl.LinkSetName(link, h.IfName()); err != nil {
		return fmt.Errorf("rename %s to %s: %w", ifname, h.IfName(), err)
	}

	link, err = nl.LinkByName(h.IfName())
	if err != nil {
		return fmt.Errorf("lookup %s in %s: %w", h.IfName(), h.Name, err)
	}

	addr, err := netlink.ParseAddr(h.Addr.String())
	if err != nil {
		return fmt.Errorf("parse address %s: %w", h.Addr, err)
	}
	if err := nl.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("assign %s to %s: %w", h.Addr, h.IfName(), err)
	}

	if err := nl.LinkSetUp(link); err != nil {
		return fmt.Errorf("up %s in %s: %w", h.IfName(), h.Name, err)
	}

	return nil
}

// shapeEnd applies the link's bandwidth, delay, and loss parameters to one
// root-namespace veth end with tc netem.
func (d *Driver) shapeEnd(ctx context.Context, ifname string, l topo.Link) error {
	args := netemArgs(l)
	if args == nil {
		return nil
	}

	cmd := append([]string{"qdisc", "add", "dev", ifname, "root", "netem"}, args...)
	if out, err := runCmd(ctx, "tc", cmd...); err != nil {
		return fmt.Errorf("shape %s: %w (%s)", ifname, err, out)
	}
	return nil
}

var _ emu.Driver = (*Driver)(nil)
