package topo

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	gonumtopo "gonum.org/v1/gonum/graph/topo"
)

// HostPair is an unordered pair of host names, with Src < Dst.
type HostPair struct {
	Src string
	Dst string
}

// Graph returns an undirected gonum view of the topology with one node per
// declared entity and one edge per declared link. Node IDs are assigned in
// sorted entity-name order and are stable for a given topology.
func (t *Topology) Graph() (*simple.UndirectedGraph, map[string]int64) {
	g := simple.NewUndirectedGraph()
	ids := make(map[string]int64, len(t.hosts)+len(t.switches))

	names := make([]string, 0, len(t.hosts)+len(t.switches))
	for name := range t.hosts {
		names = append(names, name)
	}
	for name := range t.switches {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		ids[name] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}

	for _, l := range t.links {
		g.SetEdge(g.NewEdge(simple.Node(ids[l.A]), simple.Node(ids[l.B])))
	}

	return g, ids
}

// ExpectedReachable returns every host pair connected by the declared link
// graph, ignoring runtime link state. The connectivity probe compares its
// observed reachability against this set: pairs outside it are expected to
// fail, pairs inside it that fail are worth reporting.
func (t *Topology) ExpectedReachable() []HostPair {
	g, ids := t.Graph()

	// Component index per node id.
	comp := make(map[int64]int, len(ids))
	for i, cc := range gonumtopo.ConnectedComponents(g) {
		for _, n := range cc {
			comp[n.ID()] = i
		}
	}

	hosts := t.Hosts()
	var pairs []HostPair
	for i := 0; i < len(hosts); i++ {
		for j := i + 1; j < len(hosts); j++ {
			a, b := hosts[i].Name, hosts[j].Name
			if comp[ids[a]] == comp[ids[b]] {
				pairs = append(pairs, HostPair{Src: a, Dst: b})
			}
		}
	}
	return pairs
}
