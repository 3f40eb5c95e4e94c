// Package interactive provides the interactive command-line interface
// for dnssd.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/dnssd-go/pkg/daemon"
	"github.com/mash-protocol/dnssd-go/pkg/discovery"
	"github.com/mash-protocol/dnssd-go/pkg/txtrecord"
	"github.com/mash-protocol/dnssd-go/pkg/version"
)

// Session is the part of *discovery.Session the shell drives.
type Session interface {
	Publish() error
	Stop()
	ResolveWithTimeout(timeout time.Duration) error
	StartMonitoring() error
	StopMonitoring()
	SetAttributeRecord(b []byte) error
	Descriptor() discovery.Descriptor
	State() discovery.State
	IsPublished() bool
	IsMonitoring() bool
	FullName() string
	DaemonVersion() (uint32, error)
}

var _ Session = (*discovery.Session)(nil)

// Shell handles interactive mode for dnssd.
type Shell struct {
	sess    Session
	timeout time.Duration
	rl      *readline.Instance
	out     io.Writer
}

// New creates a readline-backed shell. timeout is used by resolve when no
// timeout argument is given.
func New(sess Session, timeout time.Duration) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dnssd> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := NewWriter(sess, timeout, rl.Stdout())
	s.rl = rl
	return s, nil
}

// NewWriter creates a shell without a prompt that writes to out. Use Exec to
// drive it; Run requires a shell created with New.
func NewWriter(sess Session, timeout time.Duration, out io.Writer) *Shell {
	return &Shell{sess: sess, timeout: timeout, out: out}
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output so lines do not break the input line.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	if s.rl == nil {
		return
	}
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if s.Exec(line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "publish", "p":
		s.report("publish", s.sess.Publish())

	case "stop":
		s.sess.Stop()
		fmt.Fprintln(s.out, "Stopped")

	case "resolve", "r":
		s.cmdResolve(args)

	case "monitor", "m":
		s.report("monitor", s.sess.StartMonitoring())

	case "unmonitor", "um":
		s.sess.StopMonitoring()
		fmt.Fprintln(s.out, "Monitoring stopped")

	case "txt":
		s.cmdTXT(args)

	case "show", "status", "s":
		s.cmdShow()

	case "version", "v":
		s.cmdVersion()

	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
DNS-SD Session Commands:
  publish            - Publish the service
  stop               - Stop publishing and resolving
  resolve [timeout]  - Resolve the service (e.g. "resolve 2s" or "resolve 2")
  monitor            - Watch the service's TXT record
  unmonitor          - Stop watching the TXT record
  txt <k[=v]>...     - Replace the TXT record ("txt" alone clears it)
  show               - Show session state and service data
  version            - Show library and daemon versions
  help               - Show this help
  quit               - Exit`)
}

func (s *Shell) report(what string, err error) {
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s: %v\n", what, err)
	}
}

func (s *Shell) cmdResolve(args []string) {
	timeout := s.timeout
	if len(args) > 0 {
		d, err := parseTimeout(args[0])
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		timeout = d
	}
	s.report("resolve", s.sess.ResolveWithTimeout(timeout))
}

// parseTimeout accepts a Go duration or a number of seconds.
func parseTimeout(arg string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(arg, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("timeout must be positive: %s", arg)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(arg)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeout: %s", arg)
	}
	return d, nil
}

func (s *Shell) cmdTXT(args []string) {
	r := make(txtrecord.Record, 0, len(args))
	for _, a := range args {
		key, value, ok := strings.Cut(a, "=")
		e := txtrecord.Entry{Key: key}
		if ok {
			e.Value = []byte(value)
		}
		r = append(r, e)
	}

	b, err := txtrecord.Encode(r)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if err := s.sess.SetAttributeRecord(b); err != nil {
		fmt.Fprintf(s.out, "Error: txt: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "TXT set: %s\n", r)
}

func (s *Shell) cmdShow() {
	d := s.sess.Descriptor()
	fmt.Fprintf(s.out, "Service:    %s\n", s.sess.FullName())
	fmt.Fprintf(s.out, "State:      %s\n", s.sess.State())
	fmt.Fprintf(s.out, "Published:  %t\n", s.sess.IsPublished())
	fmt.Fprintf(s.out, "Monitoring: %t\n", s.sess.IsMonitoring())
	if d.Port != 0 {
		fmt.Fprintf(s.out, "Port:       %d\n", d.Port)
	}
	if d.HostName != "" {
		fmt.Fprintf(s.out, "Host:       %s\n", d.HostName)
	}
	for _, a := range d.Addresses {
		fmt.Fprintf(s.out, "Address:    %s\n", a)
	}
	if len(d.TXT) > 0 {
		if r, err := txtrecord.Decode(d.TXT); err == nil {
			fmt.Fprintf(s.out, "TXT:        %s\n", r)
		} else {
			fmt.Fprintf(s.out, "TXT:        %x (undecodable: %v)\n", d.TXT, err)
		}
	}
}

func (s *Shell) cmdVersion() {
	fmt.Fprintf(s.out, "dnssd-go %s\n", version.Current)
	v, err := s.sess.DaemonVersion()
	if err != nil {
		fmt.Fprintf(s.out, "Daemon:   unavailable (%v)\n", err)
		return
	}
	fmt.Fprintf(s.out, "Daemon:   %s\n", version.FromDaemon(v))
}

// HandleEvent prints a session event. Register it with Session.OnEvent.
func (s *Shell) HandleEvent(ev discovery.Event) {
	switch ev.Type {
	case discovery.EventPublished:
		fmt.Fprintf(s.out, "[PUBLISHED] %s\n", daemon.ConstructFullName(ev.Name, ev.ServiceType, ev.Domain))
	case discovery.EventResolved:
		fmt.Fprintf(s.out, "[RESOLVED] %s:%d", ev.HostName, ev.Port)
		for _, a := range ev.Addresses {
			fmt.Fprintf(s.out, " %s", a.Addr())
		}
		fmt.Fprintln(s.out)
	case discovery.EventTXTUpdated:
		if ev.Err != nil {
			fmt.Fprintf(s.out, "[TXT_UPDATED] undecodable: %v\n", ev.Err)
			return
		}
		fmt.Fprintf(s.out, "[TXT_UPDATED] %s\n", ev.TXT)
	default:
		fmt.Fprintf(s.out, "[%s] %v\n", ev.Type, ev.Err)
	}
}
