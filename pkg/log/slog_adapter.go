package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger.
// Useful for development when you want to see session activity in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.Service != "" {
		attrs = append(attrs, slog.String("service", event.Service))
	}

	switch {
	case event.Operation != nil:
		attrs = append(attrs,
			slog.String("op", event.Operation.Op),
			slog.Uint64("ref", event.Operation.Ref),
		)
		if event.Operation.RRType != 0 {
			attrs = append(attrs, slog.Uint64("rrtype", uint64(event.Operation.RRType)))
		}
		if event.Operation.Target != "" {
			attrs = append(attrs, slog.String("target", event.Operation.Target))
		}
	case event.Reply != nil:
		attrs = append(attrs,
			slog.String("op", event.Reply.Op),
			slog.Uint64("ref", event.Reply.Ref),
			slog.Int("code", int(event.Reply.Code)),
		)
		if event.Reply.Flags != 0 {
			attrs = append(attrs, slog.Uint64("flags", uint64(event.Reply.Flags)))
		}
		if event.Reply.Stale {
			attrs = append(attrs, slog.Bool("stale", true))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_op", event.Error.Op),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "dnssd", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
