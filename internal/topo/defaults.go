package topo

import "time"

// Default returns the canonical test topology:
//
//	h1 --- s1 --- s2 --- h2
//	        |      |
//	        +--s3--+
//	           |
//	           h3
//
// Link parameters are deliberately uneven — the s1-s3 and s3-h3 links are
// lossy and slow — so the adaptive system under test has something to react
// to even before any scenario runs.
func Default() Spec {
	return Spec{
		Hosts: []HostSpec{
			{Name: "h1", Addr: "10.0.0.1/24"},
			{Name: "h2", Addr: "10.0.0.2/24"},
			{Name: "h3", Addr: "10.0.0.3/24"},
		},
		Switches: []SwitchSpec{
			{Name: "s1", DPID: "0000000000000001"},
			{Name: "s2", DPID: "0000000000000002"},
			{Name: "s3", DPID: "0000000000000003"},
		},
		Links: []LinkSpec{
			{A: "h1", B: "s1", BandwidthMbps: 100, Delay: 1 * time.Millisecond},
			{A: "s1", B: "s2", BandwidthMbps: 1000, Delay: 2 * time.Millisecond},
			{A: "s2", B: "h2", BandwidthMbps: 100, Delay: 1 * time.Millisecond},
			{A: "s1", B: "s3", BandwidthMbps: 100, Delay: 5 * time.Millisecond, LossPercent: 1},
			{A: "s3", B: "s2", BandwidthMbps: 500, Delay: 3 * time.Millisecond},
			{A: "s3", B: "h3", BandwidthMbps: 50, Delay: 10 * time.Millisecond, LossPercent: 2},
		},
	}
}
