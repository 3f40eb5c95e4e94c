package dispatch

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueClosed is returned by Queue.Execute after Close.
	ErrQueueClosed = errors.New("dispatch queue closed")

	// ErrCanceled is returned by ExecuteUntil when the hand-over was given up.
	ErrCanceled = errors.New("dispatch canceled")
)

// Executor runs delivered results somewhere the application chooses.
type Executor interface {
	// Execute arranges for fn to run. It may run fn before returning.
	Execute(fn func()) error
}

// CancelableExecutor is an Executor whose hand-over may block, and which can
// give up on it. The dispatcher uses ExecuteUntil so that a released watch
// never waits on a backed-up executor.
type CancelableExecutor interface {
	Executor

	// ExecuteUntil is Execute that returns ErrCanceled once cancel is
	// closed and fn has not been accepted yet.
	ExecuteUntil(fn func(), cancel <-chan struct{}) error
}

// executeUntil hands fn to e, giving up on cancel when e supports it.
func executeUntil(e Executor, fn func(), cancel <-chan struct{}) error {
	if c, ok := e.(CancelableExecutor); ok {
		return c.ExecuteUntil(fn, cancel)
	}
	return e.Execute(fn)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func()) error

// Execute calls f(fn).
func (f ExecutorFunc) Execute(fn func()) error {
	return f(fn)
}

// DirectExecutor runs fn immediately on the calling goroutine, which for
// replies is the dispatcher's wait goroutine.
type DirectExecutor struct{}

// Execute runs fn.
func (DirectExecutor) Execute(fn func()) error {
	fn()
	return nil
}

// Queue is an executor the host drains on its own schedule, e.g. from its
// main loop. Results run on whichever goroutine calls Run or Drain.
type Queue struct {
	ch   chan func()
	done chan struct{}
	once sync.Once
}

// NewQueue creates a queue holding up to size undelivered results.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		ch:   make(chan func(), size),
		done: make(chan struct{}),
	}
}

// Execute enqueues fn, blocking while the queue is full.
func (q *Queue) Execute(fn func()) error {
	return q.ExecuteUntil(fn, nil)
}

// ExecuteUntil enqueues fn, blocking while the queue is full and cancel is
// open. A nil cancel never fires.
func (q *Queue) ExecuteUntil(fn func(), cancel <-chan struct{}) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	case <-cancel:
		return ErrCanceled
	default:
	}
	select {
	case q.ch <- fn:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-cancel:
		return ErrCanceled
	}
}

// Run executes queued results until ctx is done or the queue is closed.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-q.ch:
			fn()
		case <-q.done:
			q.Drain()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain executes everything queued right now and returns the count.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case fn := <-q.ch:
			fn()
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued results.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting results. Blocked Execute calls return ErrQueueClosed.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

var (
	_ Executor = DirectExecutor{}
	_ Executor = (*Queue)(nil)
	_ Executor = ExecutorFunc(nil)

	_ CancelableExecutor = (*Queue)(nil)
)
