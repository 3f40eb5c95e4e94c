package discovery

import (
	"errors"
	"time"

	"github.com/mash-protocol/dnssd-go/pkg/daemon"
	"github.com/mash-protocol/dnssd-go/pkg/log"
)

// Trace helpers. All are called with s.mu held.

func (s *Session) traceEvent(e log.Event) {
	e.Timestamp = time.Now()
	e.SessionID = s.id
	e.Service = s.fullNameLocked()
	s.trace.Log(e)
}

func (s *Session) traceOp(op string, ref daemon.ServiceRef, rrType uint16, target string) {
	s.traceEvent(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerSession,
		Category:  log.CategoryOperation,
		Operation: &log.OperationEvent{Op: op, Ref: uint64(ref), RRType: rrType, Target: target},
	})
}

func (s *Session) traceReply(op string, ref daemon.ServiceRef, code daemon.ErrorCode, flags daemon.Flags, stale bool) {
	s.traceEvent(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerDispatch,
		Category:  log.CategoryReply,
		Reply: &log.ReplyEvent{
			Op:    op,
			Ref:   uint64(ref),
			Code:  int32(code),
			Flags: uint32(flags),
			Stale: stale,
		},
	})
}

func (s *Session) traceState(old, now State, reason string) {
	s.traceEvent(log.Event{
		Direction:   log.DirectionIn,
		Layer:       log.LayerSession,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{OldState: old.String(), NewState: now.String(), Reason: reason},
	})
}

func (s *Session) traceError(op string, err error) {
	data := &log.ErrorEventData{Op: op, Message: err.Error()}
	var de *daemon.Error
	if errors.As(err, &de) {
		code := int(de.Code)
		data.Code = &code
	}
	s.traceEvent(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerSession,
		Category:  log.CategoryError,
		Error:     data,
	})
}
