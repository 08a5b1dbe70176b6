// Package shell implements the interactive foreground session of the
// fault-injection harness.
//
// The session is a simple REPL over an injected reader/writer pair. Each
// input line is dispatched through a cobra command tree, so commands get
// flag parsing, argument validation, and help for free.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dantte-lp/faultline/internal/emu"
	"github.com/dantte-lp/faultline/internal/scenario"
	"github.com/dantte-lp/faultline/internal/topo"
)

// prompt is printed before each input line.
const prompt = "faultline> "

// shellCommands lists the available commands for the help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"hosts", "List emulated hosts"},
	{"links", "List links and their state"},
	{"ping", "Probe connectivity between all host pairs"},
	{"link <a> <b> up|down", "Change a link's state"},
	{"exec <host> <cmd...>", "Run a command on a host"},
	{"status", "Show background scenario progress"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the session"},
}

// Session is the foreground interactive shell. It owns no network
// resources: all operations go through the injected Network handle, so the
// session can run concurrently with the background scenario sequence.
type Session struct {
	net    emu.Network
	t      *topo.Topology
	runner *scenario.Runner
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
}

// Option configures optional Session parameters.
type Option func(*Session)

// WithRunner attaches the background scenario runner so the status command
// can report its progress.
func WithRunner(r *scenario.Runner) Option {
	return func(s *Session) {
		s.runner = r
	}
}

// WithInput overrides the input stream. Defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(s *Session) {
		s.in = r
	}
}

// WithOutput overrides the output stream. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Session) {
		s.out = w
	}
}

// NewSession creates a Session operating on the given network handle and
// topology model.
func NewSession(net emu.Network, t *topo.Topology, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		net:    net,
		t:      t,
		logger: logger.With(slog.String("component", "shell")),
		in:     os.Stdin,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads and dispatches commands until EOF, "exit"/"quit", or ctx
// cancellation. Command errors are printed, not returned: a failed command
// never ends the session. Cancellation returns nil promptly; ending the
// session from the outside is a normal shutdown, not a fault.
func (s *Session) Run(ctx context.Context) error {
	s.banner()

	// Reading runs on its own goroutine so the session can react to ctx
	// between lines: a terminal read itself cannot be interrupted, so a
	// reader stuck inside Scan only exits after the next line or EOF.
	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprint(s.out, prompt)

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read session input: %w", err)
					}
				default:
				}
				return nil
			}

			line := strings.TrimSpace(raw)

			switch {
			case line == "exit" || line == "quit":
				return nil
			case line == "help" || line == "?":
				s.help()
			case line != "":
				if err := s.dispatch(ctx, strings.Fields(line)); err != nil {
					fmt.Fprintln(s.out, "Error:", err)
				}
			}

			fmt.Fprint(s.out, prompt)
		}
	}
}

// dispatch runs one command line through a fresh cobra tree. A new tree per
// line keeps flag state from leaking between commands.
func (s *Session) dispatch(ctx context.Context, args []string) error {
	root := s.newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// banner prints a welcome message when the session starts.
func (s *Session) banner() {
	fmt.Fprintln(s.out, "faultline interactive session. Type 'help' for available commands, 'exit' to quit.")
	fmt.Fprintln(s.out)
}

// help prints a formatted list of available commands.
func (s *Session) help() {
	fmt.Fprintln(s.out, "Available commands:")
	fmt.Fprintln(s.out)

	for _, cmd := range shellCommands {
		fmt.Fprintf(s.out, "  %-24s %s\n", cmd.name, cmd.desc)
	}

	fmt.Fprintln(s.out)
}
