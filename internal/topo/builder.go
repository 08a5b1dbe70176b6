package topo

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"time"
)

// -------------------------------------------------------------------------
// Validation Errors
// -------------------------------------------------------------------------

// Sentinel errors for topology validation. All of them are fatal: Build
// rejects the spec before any network resource is created.
var (
	// ErrEmptyName indicates an entity with no name.
	ErrEmptyName = errors.New("entity name must not be empty")

	// ErrDuplicateHost indicates two hosts share a name.
	ErrDuplicateHost = errors.New("duplicate host name")

	// ErrDuplicateAddr indicates two hosts share an IP address.
	ErrDuplicateAddr = errors.New("duplicate host address")

	// ErrDuplicateSwitch indicates two switches share a name.
	ErrDuplicateSwitch = errors.New("duplicate switch name")

	// ErrDuplicateDPID indicates two switches share a datapath identifier.
	ErrDuplicateDPID = errors.New("duplicate switch dpid")

	// ErrInvalidAddr indicates a host address failed to parse as CIDR.
	ErrInvalidAddr = errors.New("invalid host address")

	// ErrInvalidDPID indicates a switch dpid failed to parse as 64-bit hex.
	ErrInvalidDPID = errors.New("invalid switch dpid")

	// ErrUnknownEndpoint indicates a link references an undeclared entity.
	ErrUnknownEndpoint = errors.New("link endpoint does not resolve to a declared entity")

	// ErrSelfLink indicates a link connects an entity to itself.
	ErrSelfLink = errors.New("link endpoints must differ")
)

// -------------------------------------------------------------------------
// Spec — declarative topology description
// -------------------------------------------------------------------------

// Spec is the declarative topology description, typically decoded from the
// "topology" section of the configuration file.
type Spec struct {
	Hosts    []HostSpec   `koanf:"hosts"`
	Switches []SwitchSpec `koanf:"switches"`
	Links    []LinkSpec   `koanf:"links"`
}

// Empty reports whether the spec declares nothing at all.
func (s Spec) Empty() bool {
	return len(s.Hosts) == 0 && len(s.Switches) == 0 && len(s.Links) == 0
}

// HostSpec declares one host.
type HostSpec struct {
	// Name is the host identifier (e.g., "h1").
	Name string `koanf:"name"`

	// Addr is the host address in CIDR notation (e.g., "10.0.0.1/24").
	Addr string `koanf:"addr"`
}

// SwitchSpec declares one switch.
type SwitchSpec struct {
	// Name is the switch identifier (e.g., "s1").
	Name string `koanf:"name"`

	// DPID is the OpenFlow datapath identifier as a hex string
	// (e.g., "0000000000000001").
	DPID string `koanf:"dpid"`
}

// LinkSpec declares one link between two declared entities.
type LinkSpec struct {
	// A and B name the link endpoints.
	A string `koanf:"a"`
	B string `koanf:"b"`

	// BandwidthMbps is the link capacity in megabits per second.
	BandwidthMbps int `koanf:"bandwidth_mbps"`

	// Delay is the one-way propagation delay (e.g., "2ms").
	Delay time.Duration `koanf:"delay"`

	// LossPercent is the random packet loss rate in percent.
	LossPercent float64 `koanf:"loss_percent"`
}

// -------------------------------------------------------------------------
// Build
// -------------------------------------------------------------------------

// Build validates the spec and constructs a Topology from it. Any
// violation — duplicate identifier, unparseable address or dpid, dangling
// link endpoint — rejects the whole spec. Validation happens entirely
// in-memory, before any emulated resource exists.
func Build(spec Spec) (*Topology, error) {
	t := &Topology{
		hosts:    make(map[string]Host, len(spec.Hosts)),
		switches: make(map[string]Switch, len(spec.Switches)),
		state:    make(map[pairKey]LinkState, len(spec.Links)),
	}

	if err := buildHosts(t, spec.Hosts); err != nil {
		return nil, err
	}
	if err := buildSwitches(t, spec.Switches); err != nil {
		return nil, err
	}
	if err := buildLinks(t, spec.Links); err != nil {
		return nil, err
	}

	return t, nil
}

func buildHosts(t *Topology, specs []HostSpec) error {
	seenAddr := make(map[netip.Addr]string, len(specs))

	for i, hs := range specs {
		if hs.Name == "" {
			return fmt.Errorf("hosts[%d]: %w", i, ErrEmptyName)
		}
		if _, dup := t.hosts[hs.Name]; dup {
			return fmt.Errorf("host %q: %w", hs.Name, ErrDuplicateHost)
		}

		prefix, err := netip.ParsePrefix(hs.Addr)
		if err != nil {
			return fmt.Errorf("host %q addr %q: %w: %w", hs.Name, hs.Addr, ErrInvalidAddr, err)
		}

		if prev, dup := seenAddr[prefix.Addr()]; dup {
			return fmt.Errorf("host %q addr %s (also on %q): %w",
				hs.Name, prefix.Addr(), prev, ErrDuplicateAddr)
		}
		seenAddr[prefix.Addr()] = hs.Name

		t.hosts[hs.Name] = Host{Name: hs.Name, Addr: prefix}
	}

	return nil
}

func buildSwitches(t *Topology, specs []SwitchSpec) error {
	seenDPID := make(map[uint64]string, len(specs))

	for i, ss := range specs {
		if ss.Name == "" {
			return fmt.Errorf("switches[%d]: %w", i, ErrEmptyName)
		}
		if _, dup := t.switches[ss.Name]; dup {
			return fmt.Errorf("switch %q: %w", ss.Name, ErrDuplicateSwitch)
		}

		dpid, err := strconv.ParseUint(ss.DPID, 16, 64)
		if err != nil {
			return fmt.Errorf("switch %q dpid %q: %w: %w", ss.Name, ss.DPID, ErrInvalidDPID, err)
		}

		if prev, dup := seenDPID[dpid]; dup {
			return fmt.Errorf("switch %q dpid %016x (also on %q): %w",
				ss.Name, dpid, prev, ErrDuplicateDPID)
		}
		seenDPID[dpid] = ss.Name

		t.switches[ss.Name] = Switch{Name: ss.Name, DPID: dpid}
	}

	return nil
}

func buildLinks(t *Topology, specs []LinkSpec) error {
	for i, ls := range specs {
		if ls.A == ls.B {
			return fmt.Errorf("links[%d] %s-%s: %w", i, ls.A, ls.B, ErrSelfLink)
		}
		for _, ep := range []string{ls.A, ls.B} {
			if !t.resolves(ep) {
				return fmt.Errorf("links[%d] endpoint %q: %w", i, ep, ErrUnknownEndpoint)
			}
		}

		t.links = append(t.links, Link{
			A:             ls.A,
			B:             ls.B,
			BandwidthMbps: ls.BandwidthMbps,
			Delay:         ls.Delay,
			LossPercent:   ls.LossPercent,
		})
		t.state[keyFor(ls.A, ls.B)] = LinkUp
	}

	return nil
}

// resolves reports whether name refers to a declared host or switch.
func (t *Topology) resolves(name string) bool {
	if _, ok := t.hosts[name]; ok {
		return true
	}
	_, ok := t.switches[name]
	return ok
}
