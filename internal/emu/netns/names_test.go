package netnsdrv

import (
	"context"
	"testing"
	"time"

	"github.com/dantte-lp/faultline/internal/topo"
)

func TestNsName(t *testing.T) {
	t.Parallel()

	if got := nsName("h1"); got != "fl-h1" {
		t.Errorf("nsName(h1) = %q, want fl-h1", got)
	}
}

func TestEndName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		local, peer string
		want        string
	}{
		{"h1", "s1", "fl-h1.s1"},
		{"s1", "h1", "fl-s1.h1"},
		{"s1", "s2", "fl-s1.s2"},
	}

	for _, tt := range tests {
		got := endName(tt.local, tt.peer)
		if got != tt.want {
			t.Errorf("endName(%s, %s) = %q, want %q", tt.local, tt.peer, got, tt.want)
		}

		// IFNAMSIZ limit.
		if len(got) > 15 {
			t.Errorf("endName(%s, %s) = %q exceeds 15 bytes", tt.local, tt.peer, got)
		}
	}
}

func TestLinkKeySymmetric(t *testing.T) {
	t.Parallel()

	if linkKey("s1", "s3") != linkKey("s3", "s1") {
		t.Error("linkKey is not symmetric")
	}

	if linkKey("s1", "s3") == linkKey("s1", "s2") {
		t.Error("linkKey collides across distinct links")
	}
}

func TestNetemArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		link topo.Link
		want []string
	}{
		{
			name: "unshaped",
			link: topo.Link{A: "s1", B: "s2"},
			want: nil,
		},
		{
			name: "delay only",
			link: topo.Link{A: "h1", B: "s1", Delay: time.Millisecond},
			want: []string{"delay", "1ms"},
		},
		{
			name: "full shaping",
			link: topo.Link{A: "s3", B: "h3", BandwidthMbps: 50, Delay: 10 * time.Millisecond, LossPercent: 2},
			want: []string{"delay", "10ms", "loss", "2%", "rate", "50mbit"},
		},
		{
			name: "fractional loss",
			link: topo.Link{A: "s1", B: "s3", LossPercent: 0.5},
			want: []string{"loss", "0.5%"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := netemArgs(tt.link)
			if len(got) != len(tt.want) {
				t.Fatalf("netemArgs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("netemArgs() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestShellCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cmd  string
		want string
	}{
		{
			name: "foreground unchanged",
			cmd:  "ping -c1 10.0.0.2",
			want: "ping -c1 10.0.0.2",
		},
		{
			name: "backgrounded gets redirect",
			cmd:  "iperf -s &",
			want: "iperf -s >/dev/null 2>&1 &",
		},
		{
			name: "trailing whitespace",
			cmd:  "iperf -c 10.0.0.2 -t 20 -b 900M & ",
			want: "iperf -c 10.0.0.2 -t 20 -b 900M >/dev/null 2>&1 &",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := shellCmd(tt.cmd); got != tt.want {
				t.Errorf("shellCmd(%q) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestRunCmdBackgroundReturnsImmediately(t *testing.T) {
	t.Parallel()

	// A backgrounded child must not hold the output pipe open: the call
	// returns as soon as the shell exits, not when the child does.
	start := time.Now()
	_, err := runCmd(context.Background(), "sh", "-c", shellCmd("sleep 3 &"))
	if err != nil {
		t.Fatalf("runCmd() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("runCmd() blocked %v on a backgrounded command", elapsed)
	}
}

func TestRootEnds(t *testing.T) {
	t.Parallel()

	top, err := topo.Build(topo.Default())
	if err != nil {
		t.Fatalf("build topology: %v", err)
	}

	tests := []struct {
		a, b string
		want int
	}{
		{"h1", "s1", 1}, // host end moves into the namespace
		{"s1", "s2", 2}, // both ends stay in the root namespace
	}

	for _, tt := range tests {
		l, err := top.Link(tt.a, tt.b)
		if err != nil {
			t.Fatalf("link %s-%s: %v", tt.a, tt.b, err)
		}

		ends := rootEnds(top, l, endName(l.A, l.B), endName(l.B, l.A))
		if len(ends) != tt.want {
			t.Errorf("rootEnds(%s-%s) = %v, want %d entries", tt.a, tt.b, ends, tt.want)
		}
	}
}
