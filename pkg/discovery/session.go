package discovery

import (
	"bytes"
	"errors"
	"log/slog"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"

	"github.com/mash-protocol/dnssd-go/pkg/daemon"
	"github.com/mash-protocol/dnssd-go/pkg/dispatch"
	"github.com/mash-protocol/dnssd-go/pkg/log"
	"github.com/mash-protocol/dnssd-go/pkg/txtrecord"
)

// Session publishes, resolves and monitors one service through a daemon.
//
// A session holds at most one daemon reference per kind: register,
// resolve (which becomes the address lookup once the host is known) and
// monitor. Starting an operation releases the previous reference of its kind.
// Replies for a reference the session no longer holds are ignored.
//
// Events are raised on the dispatcher's execution context, never while the
// session lock is held, so handlers may call back into the session.
type Session struct {
	id          string
	daemon      daemon.Daemon
	disp        *dispatch.Dispatcher
	ownsDisp    bool
	logger      *slog.Logger
	trace       log.Logger
	addressType uint16
	timer       *DeadlineTimer

	mu        sync.Mutex
	name      string
	regType   string
	domain    string
	port      uint16
	hostName  string
	txt       []byte
	addresses []netip.AddrPort
	published bool
	closed    bool

	registerRef daemon.ServiceRef
	resolveRef  daemon.ServiceRef
	lookingUp   bool
	pending     []netip.AddrPort
	resolveGen  uint64
	timeout     time.Duration
	monitorRef  daemon.ServiceRef

	hmu      sync.RWMutex
	handlers []EventHandler
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trace := cfg.Trace
	if trace == nil {
		trace = log.NoopLogger{}
	}

	id := uuid.NewString()
	s := &Session{
		id:          id,
		daemon:      cfg.Daemon,
		disp:        cfg.Dispatcher,
		logger:      logger.With("component", "session", "session_id", id),
		trace:       trace,
		addressType: cfg.AddressType,
		name:        cfg.Name,
		regType:     cfg.Type,
		domain:      cfg.Domain,
		port:        cfg.Port,
		txt:         slices.Clone(cfg.TXT),
	}
	if s.disp == nil {
		s.disp = dispatch.New(cfg.Daemon, dispatch.Config{Logger: logger})
		s.ownsDisp = true
	}
	s.timer = NewDeadlineTimer(s.deliver)
	return s, nil
}

// ID returns the session's unique id, as used in logs and traces.
func (s *Session) ID() string {
	return s.id
}

// OnEvent registers a handler for all session events.
func (s *Session) OnEvent(handler EventHandler) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Publish registers the service with the daemon. The outcome is reported
// through Published or NotPublished; daemon failures, including ones that
// happen synchronously, are never returned.
func (s *Session) Publish() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.name == "" {
		s.mu.Unlock()
		return ErrMissingName
	}
	if s.regType == "" {
		s.mu.Unlock()
		return ErrMissingType
	}
	if s.port == 0 {
		s.mu.Unlock()
		return ErrInvalidPort
	}

	old := s.stateLocked()
	s.releaseLocked(&s.registerRef)
	s.published = false

	var ref daemon.ServiceRef
	ref, err := s.daemon.CreateRegisterReference(s.name, s.regType, s.domain, s.port, s.txt,
		func(r daemon.RegisterReply) { s.onRegister(ref, r) })
	if err == nil {
		err = s.watchLocked(ref, "register")
	}
	if err != nil {
		s.traceError("register", err)
		s.transitionLocked(old, "register failed")
		ev := s.eventLocked(EventNotPublished)
		ev.Err = err
		s.mu.Unlock()
		return s.deliver(func() { s.emit(ev) })
	}

	s.registerRef = ref
	s.traceOp("register", ref, 0, s.fullNameLocked())
	s.transitionLocked(old, "publish")
	s.mu.Unlock()
	return nil
}

func (s *Session) onRegister(ref daemon.ServiceRef, r daemon.RegisterReply) {
	s.mu.Lock()
	if ref != s.registerRef {
		s.traceReply("register", ref, r.Err, 0, true)
		s.mu.Unlock()
		return
	}
	s.traceReply("register", ref, r.Err, 0, false)

	var ev Event
	if r.Err != daemon.ErrCodeNoError {
		old := s.stateLocked()
		s.releaseLocked(&s.registerRef)
		s.published = false
		s.transitionLocked(old, r.Err.String())
		ev = s.eventLocked(EventNotPublished)
		ev.Err = daemon.NewError("register", r.Err)
		s.traceError("register", ev.Err)
	} else {
		if r.Name != "" {
			s.name = r.Name
		}
		if r.Type != "" {
			s.regType = r.Type
		}
		if r.Domain != "" {
			s.domain = r.Domain
		}
		s.published = true
		ev = s.eventLocked(EventPublished)
	}
	s.mu.Unlock()

	s.emit(ev)
}

// Stop releases the publish and resolve references and cancels a pending
// resolve deadline. Monitoring is not affected. Stop is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked("stop")
}

func (s *Session) stopLocked(reason string) {
	old := s.stateLocked()
	s.releaseLocked(&s.registerRef)
	s.published = false
	s.releaseResolveLocked()
	s.transitionLocked(old, reason)
}

// Resolve resolves the service with DefaultResolveTimeout.
func (s *Session) Resolve() error {
	return s.ResolveWithTimeout(DefaultResolveTimeout)
}

// ResolveWithTimeout resolves the service to a host, port and addresses.
// The attempt, including the address lookup, must finish within timeout or
// NotResolved is raised with a TimeoutError. A non-positive timeout uses
// DefaultResolveTimeout.
func (s *Session) ResolveWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.name == "" {
		s.mu.Unlock()
		return ErrMissingName
	}
	if s.regType == "" {
		s.mu.Unlock()
		return ErrMissingType
	}

	old := s.stateLocked()
	s.releaseResolveLocked()

	var ref daemon.ServiceRef
	ref, err := s.daemon.CreateResolveReference(s.name, s.regType, s.domain,
		func(r daemon.ResolveReply) { s.onResolve(ref, r) })
	if err == nil {
		err = s.watchLocked(ref, "resolve")
	}
	if err != nil {
		s.traceError("resolve", err)
		s.transitionLocked(old, "resolve failed")
		ev := s.eventLocked(EventNotResolved)
		ev.Err = err
		s.mu.Unlock()
		return s.deliver(func() { s.emit(ev) })
	}

	s.resolveRef = ref
	s.timeout = timeout
	s.resolveGen = s.timer.Arm(timeout, s.onDeadline)
	s.traceOp("resolve", ref, 0, s.fullNameLocked())
	s.transitionLocked(old, "resolve")
	s.mu.Unlock()
	return nil
}

func (s *Session) onResolve(ref daemon.ServiceRef, r daemon.ResolveReply) {
	s.mu.Lock()
	if ref != s.resolveRef || s.lookingUp {
		s.traceReply("resolve", ref, r.Err, 0, true)
		s.mu.Unlock()
		return
	}
	s.traceReply("resolve", ref, r.Err, 0, false)

	old := s.stateLocked()
	var events []Event
	if r.Err != daemon.ErrCodeNoError {
		s.releaseResolveLocked()
		s.transitionLocked(old, r.Err.String())
		ev := s.eventLocked(EventNotResolved)
		ev.Err = daemon.NewError("resolve", r.Err)
		s.traceError("resolve", ev.Err)
		s.mu.Unlock()
		s.emit(ev)
		return
	}

	s.hostName = r.HostName
	s.port = r.Port
	if !bytes.Equal(r.TXT, s.txt) {
		s.txt = slices.Clone(r.TXT)
		ev := s.eventLocked(EventTXTUpdated)
		ev.TXT, ev.Err = txtrecord.Decode(s.txt)
		events = append(events, ev)
	}

	// The resolve reference is done; the address lookup takes its slot and
	// keeps the deadline running.
	s.releaseLocked(&s.resolveRef)

	var qref daemon.ServiceRef
	qref, err := s.daemon.CreateQueryReference(r.HostName, s.addressType, 0,
		func(q daemon.QueryReply) { s.onAddress(qref, q) })
	if err == nil {
		err = s.watchLocked(qref, "query")
	}
	if err != nil {
		s.timer.Cancel()
		s.transitionLocked(old, "address lookup failed")
		ev := s.eventLocked(EventNotResolved)
		ev.Err = err
		s.traceError("query", err)
		events = append(events, ev)
	} else {
		s.resolveRef = qref
		s.lookingUp = true
		s.pending = nil
		s.traceOp("query", qref, s.addressType, r.HostName)
		s.transitionLocked(old, "host resolved")
	}
	s.mu.Unlock()

	s.emit(events...)
}

func (s *Session) onAddress(ref daemon.ServiceRef, r daemon.QueryReply) {
	s.mu.Lock()
	if ref != s.resolveRef || !s.lookingUp {
		s.traceReply("query", ref, r.Err, r.Flags, true)
		s.mu.Unlock()
		return
	}
	s.traceReply("query", ref, r.Err, r.Flags, false)

	old := s.stateLocked()
	if r.Err != daemon.ErrCodeNoError {
		s.releaseResolveLocked()
		s.transitionLocked(old, r.Err.String())
		ev := s.eventLocked(EventNotResolved)
		ev.Err = daemon.NewError("query", r.Err)
		s.traceError("query", ev.Err)
		s.mu.Unlock()
		s.emit(ev)
		return
	}

	if r.Flags.Has(daemon.FlagsAdd) {
		if addr, ok := addrFromRData(r.RRType, r.RData); ok {
			s.pending = append(s.pending, netip.AddrPortFrom(addr, s.port))
		} else {
			s.logger.Warn("unusable address record", "type", dns.TypeToString[r.RRType], "len", len(r.RData))
		}
	}
	if r.Flags.Has(daemon.FlagsMoreComing) {
		s.mu.Unlock()
		return
	}

	s.addresses = s.pending
	s.pending = nil
	s.releaseResolveLocked()
	s.transitionLocked(old, "resolved")
	ev := s.eventLocked(EventResolved)
	s.mu.Unlock()

	s.emit(ev)
}

func (s *Session) onDeadline(gen uint64) {
	s.mu.Lock()
	if !s.timer.Active(gen) || gen != s.resolveGen || s.resolveRef == 0 {
		s.mu.Unlock()
		return
	}

	old := s.stateLocked()
	err := &TimeoutError{Timeout: s.timeout}
	s.releaseResolveLocked()
	s.transitionLocked(old, "timeout")
	s.traceError("resolve", err)
	ev := s.eventLocked(EventNotResolved)
	ev.Err = err
	s.mu.Unlock()

	s.emit(ev)
}

// StartMonitoring opens a long-lived query for the service's attribute
// record. Every reply raises TXTUpdated. Calling it while already
// monitoring does nothing. Failures are returned.
func (s *Session) StartMonitoring() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.monitorRef != 0 {
		return nil
	}
	if s.name == "" {
		return ErrMissingName
	}
	if s.regType == "" {
		return ErrMissingType
	}

	fqdn := s.fullNameLocked()
	var ref daemon.ServiceRef
	ref, err := s.daemon.CreateQueryReference(fqdn, dns.TypeTXT, daemon.FlagsLongLivedQuery,
		func(r daemon.QueryReply) { s.onMonitor(ref, r) })
	if err == nil {
		err = s.watchLocked(ref, "monitor")
	}
	if err != nil {
		s.traceError("monitor", err)
		return err
	}

	s.monitorRef = ref
	s.traceOp("monitor", ref, dns.TypeTXT, fqdn)
	return nil
}

func (s *Session) onMonitor(ref daemon.ServiceRef, r daemon.QueryReply) {
	s.mu.Lock()
	if ref != s.monitorRef {
		s.traceReply("monitor", ref, r.Err, r.Flags, true)
		s.mu.Unlock()
		return
	}
	s.traceReply("monitor", ref, r.Err, r.Flags, false)

	if r.Err != daemon.ErrCodeNoError {
		// There is no failure event for monitoring; the query is dropped
		// and the application can restart it.
		err := daemon.NewError("monitor", r.Err)
		s.logger.Warn("monitoring stopped", "error", err)
		s.traceError("monitor", err)
		s.releaseLocked(&s.monitorRef)
		s.mu.Unlock()
		return
	}

	s.txt = slices.Clone(r.RData)
	ev := s.eventLocked(EventTXTUpdated)
	ev.TXT, ev.Err = txtrecord.Decode(s.txt)
	s.mu.Unlock()

	s.emit(ev)
}

// StopMonitoring releases the monitor query only.
func (s *Session) StopMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(&s.monitorRef)
}

// SetAttributeRecord replaces the attribute record. Without a register
// reference the bytes are only stored and used by the next Publish. Once
// Publish has handed the service to the daemon, whether or not it has
// confirmed yet, the daemon is updated unless b equals the current record.
func (s *Session) SetAttributeRecord(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.registerRef == 0 {
		s.txt = slices.Clone(b)
		return nil
	}
	if bytes.Equal(b, s.txt) {
		return nil
	}

	s.traceOp("update", s.registerRef, dns.TypeTXT, s.fullNameLocked())
	if err := s.daemon.UpdateRecord(s.registerRef, b); err != nil {
		s.traceError("update", err)
		return err
	}
	s.txt = slices.Clone(b)
	return nil
}

// Close stops every operation including monitoring. All references are
// released before Close returns. Later starts fail with ErrSessionClosed.
// Close must not be called from an event handler when the session created
// its own dispatcher.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopLocked("close")
	s.releaseLocked(&s.monitorRef)
	s.timer.Cancel()
	s.mu.Unlock()

	if s.ownsDisp {
		s.disp.Close()
	}
}

// watchLocked starts delivery for a new reference, deallocating it when
// that is not possible.
func (s *Session) watchLocked(ref daemon.ServiceRef, op string) error {
	if err := s.disp.Watch(ref, s.onAbandon); err != nil {
		s.daemon.Deallocate(ref)
		return err
	}
	s.logger.Debug("started", "op", op, "ref", ref)
	return nil
}

// onAbandon handles a reference the dispatcher could no longer service. The
// slot is cleared as if the daemon had failed the operation.
func (s *Session) onAbandon(ref daemon.ServiceRef, err error) {
	s.mu.Lock()
	if ref == 0 {
		s.mu.Unlock()
		return
	}

	old := s.stateLocked()
	var ev Event
	switch ref {
	case s.registerRef:
		derr := daemonError("register", err)
		s.releaseLocked(&s.registerRef)
		s.published = false
		s.transitionLocked(old, "register abandoned")
		s.traceError("register", derr)
		ev = s.eventLocked(EventNotPublished)
		ev.Err = derr
	case s.resolveRef:
		op := "resolve"
		if s.lookingUp {
			op = "query"
		}
		derr := daemonError(op, err)
		s.releaseResolveLocked()
		s.transitionLocked(old, op+" abandoned")
		s.traceError(op, derr)
		ev = s.eventLocked(EventNotResolved)
		ev.Err = derr
	case s.monitorRef:
		derr := daemonError("monitor", err)
		s.logger.Warn("monitoring stopped", "error", err)
		s.traceError("monitor", derr)
		s.releaseLocked(&s.monitorRef)
		s.mu.Unlock()
		return
	default:
		s.mu.Unlock()
		return
	}
	s.logger.Warn("reference abandoned", "ref", ref, "error", err)
	s.mu.Unlock()

	_ = s.deliver(func() { s.emit(ev) })
}

// daemonError returns err as a *daemon.Error, reporting anything else as
// an unknown daemon failure of op.
func daemonError(op string, err error) error {
	var derr *daemon.Error
	if errors.As(err, &derr) {
		return derr
	}
	return &daemon.Error{Op: op, Code: daemon.ErrCodeUnknown}
}

// releaseLocked unwatches and deallocates *ref and clears the slot.
func (s *Session) releaseLocked(ref *daemon.ServiceRef) {
	if *ref == 0 {
		return
	}
	r := *ref
	*ref = 0
	s.disp.Unwatch(r)
	s.daemon.Deallocate(r)
	s.logger.Debug("released", "ref", r)
}

func (s *Session) releaseResolveLocked() {
	s.timer.Cancel()
	s.releaseLocked(&s.resolveRef)
	s.lookingUp = false
	s.pending = nil
}

func (s *Session) stateLocked() State {
	switch {
	case s.resolveRef != 0 && s.lookingUp:
		return StateAddressLookup
	case s.resolveRef != 0:
		return StateResolving
	case s.registerRef != 0:
		return StatePublishing
	default:
		return StateIdle
	}
}

func (s *Session) transitionLocked(old State, reason string) {
	if now := s.stateLocked(); now != old {
		s.traceState(old, now, reason)
	}
}

func (s *Session) eventLocked(t EventType) Event {
	return Event{
		Type:        t,
		Name:        s.name,
		ServiceType: s.regType,
		Domain:      s.domain,
		HostName:    s.hostName,
		Port:        s.port,
		Addresses:   slices.Clone(s.addresses),
	}
}

func (s *Session) fullNameLocked() string {
	return daemon.ConstructFullName(s.name, s.regType, s.domain)
}

// deliver runs fn on the execution context replies use.
func (s *Session) deliver(fn func()) error {
	if err := s.disp.Deliver(fn); err != nil {
		s.logger.Error("delivery failed", "error", err)
		return err
	}
	return nil
}

func (s *Session) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.hmu.RLock()
	handlers := slices.Clone(s.handlers)
	s.hmu.RUnlock()

	for _, ev := range events {
		s.logger.Debug("event", "type", ev.Type.String(), "error", ev.Err)
		for _, h := range handlers {
			h(ev)
		}
	}
}

// addrFromRData parses A and AAAA record data.
func addrFromRData(rrType uint16, rdata []byte) (netip.Addr, bool) {
	switch {
	case rrType == dns.TypeA && len(rdata) == 4,
		rrType == dns.TypeAAAA && len(rdata) == 16:
		return netip.AddrFromSlice(rdata)
	}
	return netip.Addr{}, false
}
