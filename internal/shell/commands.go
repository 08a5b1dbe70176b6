package shell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/faultline/internal/topo"
	appversion "github.com/dantte-lp/faultline/internal/version"
)

// errUnknownLinkState reports a link command argument that is neither "up"
// nor "down".
var errUnknownLinkState = errors.New("link state must be up or down")

// newRootCmd builds the cobra command tree for one dispatched line.
func (s *Session) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "faultline",
		Short: "Interactive fault-injection session",
		// Silence cobra's built-in usage/error printing so we control it.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(s.out)
	root.SetErr(s.out)

	root.AddCommand(s.hostsCmd())
	root.AddCommand(s.linksCmd())
	root.AddCommand(s.pingCmd())
	root.AddCommand(s.linkCmd())
	root.AddCommand(s.execCmd())
	root.AddCommand(s.statusCmd())
	root.AddCommand(s.versionCmd())

	return root
}

// --- hosts ---

func (s *Session) hostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List emulated hosts",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, h := range s.t.Hosts() {
				fmt.Fprintf(s.out, "  %-8s %s\n", h.Name, h.Addr)
			}

			return nil
		},
	}
}

// --- links ---

func (s *Session) linksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links",
		Short: "List links and their state",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, l := range s.t.Links() {
				state, err := s.t.LinkState(l.A, l.B)
				if err != nil {
					return fmt.Errorf("link state %s: %w", l.Name(), err)
				}

				fmt.Fprintf(s.out, "  %-10s %-5s %s\n", l.Name(), state, describeLink(l))
			}

			return nil
		},
	}
}

// describeLink renders the shaping parameters of a link for display.
func describeLink(l topo.Link) string {
	var parts []string

	if l.BandwidthMbps > 0 {
		parts = append(parts, fmt.Sprintf("%dMbit", l.BandwidthMbps))
	}
	if l.Delay > 0 {
		parts = append(parts, fmt.Sprintf("delay %s", l.Delay))
	}
	if l.LossPercent > 0 {
		parts = append(parts, fmt.Sprintf("loss %g%%", l.LossPercent))
	}

	return strings.Join(parts, ", ")
}

// --- ping ---

func (s *Session) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Probe connectivity between all host pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := s.net.PingAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("ping all: %w", err)
			}

			for _, p := range report.Pairs {
				mark := "ok"
				if !p.Reachable {
					mark = "UNREACHABLE"
				}
				fmt.Fprintf(s.out, "  %s -> %s: %s\n", p.Src, p.Dst, mark)
			}

			fmt.Fprintln(s.out, report)

			return nil
		},
	}
}

// --- link ---

func (s *Session) linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <a> <b> up|down",
		Short: "Change a link's state",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var state topo.LinkState

			switch strings.ToLower(args[2]) {
			case "up":
				state = topo.LinkUp
			case "down":
				state = topo.LinkDown
			default:
				return fmt.Errorf("%q: %w", args[2], errUnknownLinkState)
			}

			if err := s.net.SetLinkState(cmd.Context(), args[0], args[1], state); err != nil {
				return fmt.Errorf("set link %s-%s %s: %w", args[0], args[1], state, err)
			}

			fmt.Fprintf(s.out, "link %s-%s is %s\n", args[0], args[1], state)

			return nil
		},
	}
}

// --- exec ---

func (s *Session) execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <host> <cmd...>",
		Short: "Run a command on a host",
		Args:  cobra.MinimumNArgs(2),
		// Raw args: host commands carry their own flags.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := s.net.Exec(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return fmt.Errorf("exec on %s: %w", args[0], err)
			}

			if out != "" {
				fmt.Fprintln(s.out, strings.TrimRight(out, "\n"))
			}

			return nil
		},
	}
}

// --- status ---

func (s *Session) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show background scenario progress",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if s.runner == nil {
				fmt.Fprintln(s.out, "no background scenarios configured")
				return nil
			}

			st := s.runner.State()

			fmt.Fprintf(s.out, "phase: %s (%d/%d complete)\n", st.Phase, st.Completed, st.Total)
			if st.Scenario != "" {
				fmt.Fprintf(s.out, "scenario: %s\n", st.Scenario)
			}

			return nil
		},
	}
}

// --- version ---

func (s *Session) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprintln(s.out, appversion.Full("faultline"))
			return nil
		},
	}
}
