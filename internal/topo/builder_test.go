package topo_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/faultline/internal/topo"
)

// minimalSpec returns a small valid spec for mutation by table tests.
func minimalSpec() topo.Spec {
	return topo.Spec{
		Hosts: []topo.HostSpec{
			{Name: "h1", Addr: "10.0.0.1/24"},
			{Name: "h2", Addr: "10.0.0.2/24"},
		},
		Switches: []topo.SwitchSpec{
			{Name: "s1", DPID: "1"},
		},
		Links: []topo.LinkSpec{
			{A: "h1", B: "s1"},
			{A: "s1", B: "h2"},
		},
	}
}

func TestBuildValid(t *testing.T) {
	t.Parallel()

	top, err := topo.Build(minimalSpec())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if got := len(top.Hosts()); got != 2 {
		t.Errorf("got %d hosts, want 2", got)
	}
	if got := len(top.Links()); got != 2 {
		t.Errorf("got %d links, want 2", got)
	}
}

func TestBuildRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*topo.Spec)
		wantErr error
	}{
		{
			name: "empty host name",
			modify: func(s *topo.Spec) {
				s.Hosts[0].Name = ""
			},
			wantErr: topo.ErrEmptyName,
		},
		{
			name: "duplicate host name",
			modify: func(s *topo.Spec) {
				s.Hosts[1].Name = "h1"
			},
			wantErr: topo.ErrDuplicateHost,
		},
		{
			name: "duplicate host address",
			modify: func(s *topo.Spec) {
				s.Hosts[1].Addr = "10.0.0.1/24"
			},
			wantErr: topo.ErrDuplicateAddr,
		},
		{
			name: "bad host address",
			modify: func(s *topo.Spec) {
				s.Hosts[0].Addr = "10.0.0.1"
			},
			wantErr: topo.ErrInvalidAddr,
		},
		{
			name: "empty switch name",
			modify: func(s *topo.Spec) {
				s.Switches[0].Name = ""
			},
			wantErr: topo.ErrEmptyName,
		},
		{
			name: "duplicate switch name",
			modify: func(s *topo.Spec) {
				s.Switches = append(s.Switches, topo.SwitchSpec{Name: "s1", DPID: "2"})
			},
			wantErr: topo.ErrDuplicateSwitch,
		},
		{
			name: "duplicate dpid",
			modify: func(s *topo.Spec) {
				s.Switches = append(s.Switches, topo.SwitchSpec{Name: "s2", DPID: "1"})
			},
			wantErr: topo.ErrDuplicateDPID,
		},
		{
			name: "bad dpid",
			modify: func(s *topo.Spec) {
				s.Switches[0].DPID = "xyz"
			},
			wantErr: topo.ErrInvalidDPID,
		},
		{
			name: "dangling link endpoint",
			modify: func(s *topo.Spec) {
				s.Links[0].B = "s9"
			},
			wantErr: topo.ErrUnknownEndpoint,
		},
		{
			name: "self link",
			modify: func(s *topo.Spec) {
				s.Links[0] = topo.LinkSpec{A: "s1", B: "s1"}
			},
			wantErr: topo.ErrSelfLink,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spec := minimalSpec()
			tt.modify(&spec)

			_, err := topo.Build(spec)
			if err == nil {
				t.Fatal("Build() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSpecEmpty(t *testing.T) {
	t.Parallel()

	if !(topo.Spec{}).Empty() {
		t.Error("zero Spec should be empty")
	}
	if minimalSpec().Empty() {
		t.Error("populated Spec should not be empty")
	}
	if topo.Default().Empty() {
		t.Error("Default() should not be empty")
	}
}
