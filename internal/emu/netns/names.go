package netnsdrv

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dantte-lp/faultline/internal/topo"
)

// nsName returns the named-netns entry for a host.
func nsName(host string) string {
	return nsPrefix + host
}

// endName returns the root-namespace veth name for the local endpoint of a
// link. Interface names are capped at 15 bytes; topology names are short
// enough that local+peer fits.
func endName(local, peer string) string {
	return fmt.Sprintf("%s%s.%s", nsPrefix, local, peer)
}

// linkKey normalizes a link's endpoint pair into a lookup key.
func linkKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// netemArgs renders a link's shaping parameters as tc netem arguments.
// Returns nil when the link has no shaping.
func netemArgs(l topo.Link) []string {
	var args []string

	if l.Delay > 0 {
		args = append(args, "delay", l.Delay.String())
	}
	if l.LossPercent > 0 {
		args = append(args, "loss", fmt.Sprintf("%g%%", l.LossPercent))
	}
	if l.BandwidthMbps > 0 {
		args = append(args, "rate", fmt.Sprintf("%dmbit", l.BandwidthMbps))
	}

	return args
}

// shellCmd prepares a host command for sh -c. Commands ending in "&" are
// fire-and-forget: the backgrounded child inherits the output pipe, which
// would keep the parent's wait blocked for as long as the child lives, so
// its output is redirected away before the "&".
func shellCmd(cmd string) string {
	if body, ok := strings.CutSuffix(strings.TrimSpace(cmd), "&"); ok {
		return strings.TrimSpace(body) + " >/dev/null 2>&1 &"
	}
	return cmd
}

// runCmd executes an external command and returns its combined output with
// trailing whitespace stripped.
func runCmd(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
