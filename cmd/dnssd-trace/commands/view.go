package commands

import (
	"fmt"
	"io"

	"github.com/miekg/dns"

	"github.com/mash-protocol/dnssd-go/pkg/log"
)

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case event.Operation != nil:
		typeLabel = "Operation " + event.Operation.Op
	case event.Reply != nil:
		typeLabel = "Reply " + event.Reply.Op
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [session:%s] %-3s %s %s\n", ts, shortID(event.SessionID),
		event.Direction.String(), event.Layer.String(), typeLabel)
	if event.Service != "" {
		fmt.Fprintf(w, "  Service: %s\n", event.Service)
	}

	switch {
	case event.Operation != nil:
		op := event.Operation
		fmt.Fprintf(w, "  Ref: %d\n", op.Ref)
		if op.RRType != 0 {
			fmt.Fprintf(w, "  Type: %s\n", rrTypeName(op.RRType))
		}
		if op.Target != "" {
			fmt.Fprintf(w, "  Target: %s\n", op.Target)
		}
	case event.Reply != nil:
		r := event.Reply
		fmt.Fprintf(w, "  Ref: %d  Code: %d  Flags: 0x%x\n", r.Ref, r.Code, r.Flags)
		if r.Stale {
			fmt.Fprintln(w, "  Stale: ignored")
		}
	case event.StateChange != nil:
		sc := event.StateChange
		if sc.OldState != "" {
			fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		} else {
			fmt.Fprintf(w, "  -> %s\n", sc.NewState)
		}
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case event.Error != nil:
		e := event.Error
		if e.Op != "" {
			fmt.Fprintf(w, "  Op: %s\n", e.Op)
		}
		fmt.Fprintf(w, "  Message: %s\n", e.Message)
		if e.Code != nil {
			fmt.Fprintf(w, "  Code: %d\n", *e.Code)
		}
	}

	fmt.Fprintln(w)
}

// shortID returns the first 8 characters of a session ID.
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func rrTypeName(t uint16) string {
	if name, ok := dns.TypeToString[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE%d", t)
}

// RunView prints every event matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
