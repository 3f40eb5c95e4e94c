package discovery

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/dnssd-go/pkg/daemon"
	"github.com/mash-protocol/dnssd-go/pkg/dispatch"
)

type queryCall struct {
	ref    daemon.ServiceRef
	fqdn   string
	rrType uint16
	flags  daemon.Flags
}

// fakeDaemon is a scripted daemon. Requests allocate real references on a
// daemon.Table; tests push replies with the reply* helpers. UpdateRecord and
// Version go through testify's mock so expectations can be asserted.
type fakeDaemon struct {
	mock.Mock
	tab *daemon.Table

	mu          sync.Mutex
	registerCBs map[daemon.ServiceRef]daemon.RegisterCallback
	resolveCBs  map[daemon.ServiceRef]daemon.ResolveCallback
	queryCBs    map[daemon.ServiceRef]daemon.QueryCallback
	registers   []daemon.ServiceRef
	registerTXT [][]byte
	resolves    []daemon.ServiceRef
	queries     []queryCall
	deallocated []daemon.ServiceRef

	failRegister error
	failResolve  error
	failQuery    error
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{
		tab:         daemon.NewTable(),
		registerCBs: make(map[daemon.ServiceRef]daemon.RegisterCallback),
		resolveCBs:  make(map[daemon.ServiceRef]daemon.ResolveCallback),
		queryCBs:    make(map[daemon.ServiceRef]daemon.QueryCallback),
	}
}

func (f *fakeDaemon) CreateRegisterReference(name, regType, domain string, port uint16, txt []byte, cb daemon.RegisterCallback) (daemon.ServiceRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRegister != nil {
		return 0, f.failRegister
	}
	ref, err := f.tab.Open()
	if err != nil {
		return 0, err
	}
	f.registerCBs[ref] = cb
	f.registers = append(f.registers, ref)
	f.registerTXT = append(f.registerTXT, append([]byte(nil), txt...))
	return ref, nil
}

func (f *fakeDaemon) CreateResolveReference(name, regType, domain string, cb daemon.ResolveCallback) (daemon.ServiceRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failResolve != nil {
		return 0, f.failResolve
	}
	ref, err := f.tab.Open()
	if err != nil {
		return 0, err
	}
	f.resolveCBs[ref] = cb
	f.resolves = append(f.resolves, ref)
	return ref, nil
}

func (f *fakeDaemon) CreateQueryReference(fqdn string, rrType uint16, flags daemon.Flags, cb daemon.QueryCallback) (daemon.ServiceRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failQuery != nil {
		return 0, f.failQuery
	}
	ref, err := f.tab.Open()
	if err != nil {
		return 0, err
	}
	f.queryCBs[ref] = cb
	f.queries = append(f.queries, queryCall{ref: ref, fqdn: fqdn, rrType: rrType, flags: flags})
	return ref, nil
}

func (f *fakeDaemon) UpdateRecord(ref daemon.ServiceRef, txt []byte) error {
	args := f.Called(ref, txt)
	return args.Error(0)
}

func (f *fakeDaemon) SocketFD(ref daemon.ServiceRef) (int, error) {
	return f.tab.FD(ref)
}

func (f *fakeDaemon) ProcessResult(ref daemon.ServiceRef) error {
	return f.tab.Process(ref)
}

func (f *fakeDaemon) Deallocate(ref daemon.ServiceRef) {
	f.mu.Lock()
	f.deallocated = append(f.deallocated, ref)
	f.mu.Unlock()
	f.tab.Close(ref)
}

func (f *fakeDaemon) Version() (uint32, error) {
	args := f.Called()
	return args.Get(0).(uint32), args.Error(1)
}

func (f *fakeDaemon) lastRegister() daemon.ServiceRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.registers) == 0 {
		return 0
	}
	return f.registers[len(f.registers)-1]
}

func (f *fakeDaemon) lastResolve() daemon.ServiceRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.resolves) == 0 {
		return 0
	}
	return f.resolves[len(f.resolves)-1]
}

func (f *fakeDaemon) queryCalls() []queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queryCall(nil), f.queries...)
}

func (f *fakeDaemon) wasDeallocated(ref daemon.ServiceRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.deallocated {
		if r == ref {
			return true
		}
	}
	return false
}

func (f *fakeDaemon) replyRegister(t *testing.T, ref daemon.ServiceRef, r daemon.RegisterReply) {
	t.Helper()
	f.mu.Lock()
	cb := f.registerCBs[ref]
	f.mu.Unlock()
	require.NoError(t, f.tab.Post(ref, func() { cb(r) }))
}

func (f *fakeDaemon) replyResolve(t *testing.T, ref daemon.ServiceRef, r daemon.ResolveReply) {
	t.Helper()
	f.mu.Lock()
	cb := f.resolveCBs[ref]
	f.mu.Unlock()
	require.NoError(t, f.tab.Post(ref, func() { cb(r) }))
}

func (f *fakeDaemon) replyQuery(t *testing.T, ref daemon.ServiceRef, r daemon.QueryReply) {
	t.Helper()
	f.mu.Lock()
	cb := f.queryCBs[ref]
	f.mu.Unlock()
	require.NoError(t, f.tab.Post(ref, func() { cb(r) }))
}

var _ daemon.Daemon = (*fakeDaemon)(nil)

type harness struct {
	sess   *Session
	fake   *fakeDaemon
	disp   *dispatch.Dispatcher
	events chan Event
}

func newHarness(t *testing.T, cfg SessionConfig) *harness {
	t.Helper()

	fake := newFakeDaemon()
	sel := dispatch.NewSelector()
	sel.SetDirect(true)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	disp := dispatch.New(fake, dispatch.Config{Selector: sel, Logger: quiet})

	cfg.Daemon = fake
	cfg.Dispatcher = disp
	cfg.Logger = quiet
	if cfg.Type == "" {
		cfg.Type = "_ipp._tcp"
	}

	sess, err := NewSession(cfg)
	require.NoError(t, err)

	h := &harness{sess: sess, fake: fake, disp: disp, events: make(chan Event, 32)}
	sess.OnEvent(func(ev Event) { h.events <- ev })

	t.Cleanup(func() {
		sess.Close()
		disp.Close()
		fake.tab.CloseAll()
	})
	return h
}

func (h *harness) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func (h *harness) expect(t *testing.T, want EventType) Event {
	t.Helper()
	ev := h.next(t)
	require.Equal(t, want, ev.Type, "event %s (err %v)", ev.Type, ev.Err)
	return ev
}

func (h *harness) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %s (err %v)", ev.Type, ev.Err)
	case <-time.After(d):
	}
}
