package daemon

import (
	"os"
	"sync"
)

// Table hands out references for in-process daemons. Each reference owns a
// pipe whose read end is the descriptor callers watch, plus a FIFO of pending
// replies. Posting a reply writes one byte; Process consumes one byte and
// runs one reply.
//
// Table is safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	next    ServiceRef
	entries map[ServiceRef]*mailbox
}

type mailbox struct {
	r, w *os.File

	mu      sync.Mutex
	pending []func()
	closed  bool
}

// NewTable creates an empty reference table.
func NewTable() *Table {
	return &Table{entries: make(map[ServiceRef]*mailbox)}
}

// Open allocates a new reference.
func (t *Table) Open() (ServiceRef, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return 0, &Error{Op: "open", Code: ErrCodeNoMemory}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	ref := t.next
	t.entries[ref] = &mailbox{r: r, w: w}
	return ref, nil
}

func (t *Table) lookup(ref ServiceRef) (*mailbox, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.entries[ref]
	return m, ok
}

// Post queues fn to run on the next Process call for ref.
func (t *Table) Post(ref ServiceRef, fn func()) error {
	m, ok := t.lookup(ref)
	if !ok {
		return &Error{Op: "post", Code: ErrCodeBadReference}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &Error{Op: "post", Code: ErrCodeBadReference}
	}
	m.pending = append(m.pending, fn)
	if _, err := m.w.Write([]byte{1}); err != nil {
		m.pending = m.pending[:len(m.pending)-1]
		return &Error{Op: "post", Code: ErrCodeUnknown}
	}
	return nil
}

// FD returns the readable descriptor for ref.
func (t *Table) FD(ref ServiceRef) (int, error) {
	m, ok := t.lookup(ref)
	if !ok {
		return -1, &Error{Op: "fd", Code: ErrCodeBadReference}
	}

	// File.Fd would switch the pipe to blocking mode; Control does not.
	rc, err := m.r.SyscallConn()
	if err != nil {
		return -1, &Error{Op: "fd", Code: ErrCodeBadReference}
	}
	fd := -1
	if err := rc.Control(func(u uintptr) { fd = int(u) }); err != nil {
		return -1, &Error{Op: "fd", Code: ErrCodeBadReference}
	}
	return fd, nil
}

// Process runs exactly one pending reply for ref. The reply runs without any
// table lock held, so it may call back into the table.
func (t *Table) Process(ref ServiceRef) error {
	m, ok := t.lookup(ref)
	if !ok {
		return &Error{Op: "process", Code: ErrCodeBadReference}
	}

	var one [1]byte
	if _, err := m.r.Read(one[:]); err != nil {
		return &Error{Op: "process", Code: ErrCodeBadReference}
	}

	m.mu.Lock()
	if m.closed || len(m.pending) == 0 {
		m.mu.Unlock()
		return &Error{Op: "process", Code: ErrCodeBadReference}
	}
	fn := m.pending[0]
	m.pending[0] = nil
	m.pending = m.pending[1:]
	m.mu.Unlock()

	fn()
	return nil
}

// Close releases ref. Pending replies are dropped. Closing an unknown
// reference is a no-op.
func (t *Table) Close(ref ServiceRef) {
	t.mu.Lock()
	m, ok := t.entries[ref]
	delete(t.entries, ref)
	t.mu.Unlock()

	if ok {
		m.close()
	}
}

// CloseAll releases every reference.
func (t *Table) CloseAll() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[ServiceRef]*mailbox)
	t.mu.Unlock()

	for _, m := range entries {
		m.close()
	}
}

// Len returns the number of open references.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Has reports whether ref is open.
func (t *Table) Has(ref ServiceRef) bool {
	_, ok := t.lookup(ref)
	return ok
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.pending = nil
	_ = m.w.Close()
	_ = m.r.Close()
}
