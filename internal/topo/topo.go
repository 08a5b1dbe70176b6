// Package topo holds the emulated network topology model: hosts, switches
// and the links between them. The entity set is immutable once built; the
// only runtime-mutable field is the up/down state of each link, which is
// shared between the scenario runner and the interactive session.
package topo

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"
)

// -------------------------------------------------------------------------
// Topology Errors
// -------------------------------------------------------------------------

// Sentinel errors for topology lookups.
var (
	// ErrUnknownHost indicates the named host is not part of the topology.
	ErrUnknownHost = errors.New("unknown host")

	// ErrUnknownSwitch indicates the named switch is not part of the topology.
	ErrUnknownSwitch = errors.New("unknown switch")

	// ErrUnknownLink indicates no link connects the given endpoint pair.
	ErrUnknownLink = errors.New("unknown link")
)

// -------------------------------------------------------------------------
// Entities
// -------------------------------------------------------------------------

// Host is an emulated end host attached to the topology.
type Host struct {
	// Name is the host identifier, unique among hosts (e.g., "h1").
	Name string

	// Addr is the host's IP address and netmask (e.g., 10.0.0.1/24).
	Addr netip.Prefix
}

// IfName returns the host's primary interface name. The emulation engine
// names a host's n-th interface "<host>-eth<n>"; scenario actions that
// toggle host connectivity operate on interface 0.
func (h Host) IfName() string {
	return h.Name + "-eth0"
}

// Switch is an emulated switch managed by the external control plane.
type Switch struct {
	// Name is the switch identifier, unique among switches (e.g., "s1").
	Name string

	// DPID is the OpenFlow datapath identifier, unique among switches.
	DPID uint64
}

// DPIDString returns the canonical 16-hex-digit datapath identifier.
func (s Switch) DPIDString() string {
	return fmt.Sprintf("%016x", s.DPID)
}

// LinkState is the runtime up/down state of a link.
type LinkState uint8

const (
	// LinkUp indicates the link is forwarding.
	LinkUp LinkState = iota

	// LinkDown indicates the link is administratively disabled.
	LinkDown
)

// String returns the human-readable name of the link state.
func (s LinkState) String() string {
	switch s {
	case LinkUp:
		return "up"
	case LinkDown:
		return "down"
	default:
		return "unknown"
	}
}

// Link connects two declared entities. Endpoints may be hosts or switches.
// Everything but the runtime state is fixed at build time.
type Link struct {
	// A and B are the endpoint entity names. The pair is stored in the
	// order declared; lookups treat the link as undirected.
	A string
	B string

	// BandwidthMbps is the link capacity in megabits per second.
	BandwidthMbps int

	// Delay is the one-way propagation delay applied to the link.
	Delay time.Duration

	// LossPercent is the random packet loss rate in percent.
	LossPercent float64
}

// Name returns the canonical "a-b" link identifier.
func (l Link) Name() string {
	return l.A + "-" + l.B
}

// pairKey is the normalized (order-independent) endpoint pair.
type pairKey struct {
	a, b string
}

func keyFor(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// -------------------------------------------------------------------------
// Topology
// -------------------------------------------------------------------------

// Topology is the validated aggregate of hosts, switches and links.
// The entity set is fixed after Build; link state is the only mutable part
// and is safe for concurrent use.
type Topology struct {
	hosts    map[string]Host
	switches map[string]Switch
	links    []Link

	mu    sync.RWMutex
	state map[pairKey]LinkState
}

// Hosts returns all hosts sorted by name.
func (t *Topology) Hosts() []Host {
	hs := make([]Host, 0, len(t.hosts))
	for _, h := range t.hosts {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Name < hs[j].Name })
	return hs
}

// Switches returns all switches sorted by name.
func (t *Topology) Switches() []Switch {
	ss := make([]Switch, 0, len(t.switches))
	for _, s := range t.switches {
		ss = append(ss, s)
	}
	sort.Slice(ss, func(i, j int) bool { return ss[i].Name < ss[j].Name })
	return ss
}

// Links returns all links in declaration order.
func (t *Topology) Links() []Link {
	return append([]Link(nil), t.links...)
}

// Host returns the named host.
func (t *Topology) Host(name string) (Host, error) {
	h, ok := t.hosts[name]
	if !ok {
		return Host{}, fmt.Errorf("host %q: %w", name, ErrUnknownHost)
	}
	return h, nil
}

// Switch returns the named switch.
func (t *Topology) Switch(name string) (Switch, error) {
	s, ok := t.switches[name]
	if !ok {
		return Switch{}, fmt.Errorf("switch %q: %w", name, ErrUnknownSwitch)
	}
	return s, nil
}

// Link returns the link connecting a and b, in either endpoint order.
func (t *Topology) Link(a, b string) (Link, error) {
	key := keyFor(a, b)
	for _, l := range t.links {
		if keyFor(l.A, l.B) == key {
			return l, nil
		}
	}
	return Link{}, fmt.Errorf("link %s-%s: %w", a, b, ErrUnknownLink)
}

// LinkState returns the runtime state of the link connecting a and b.
func (t *Topology) LinkState(a, b string) (LinkState, error) {
	if _, err := t.Link(a, b); err != nil {
		return LinkDown, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state[keyFor(a, b)], nil
}

// SetLinkState records the runtime state of the link connecting a and b.
// The caller is responsible for having applied the change to the emulated
// network; this only updates the shared model.
func (t *Topology) SetLinkState(a, b string, s LinkState) error {
	if _, err := t.Link(a, b); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.state[keyFor(a, b)] = s
	return nil
}
