package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/dnssd-go/pkg/daemon"
)

// tableProcessor exposes a daemon.Table through the Processor interface.
type tableProcessor struct {
	*daemon.Table
}

func (p tableProcessor) SocketFD(ref daemon.ServiceRef) (int, error) { return p.FD(ref) }
func (p tableProcessor) ProcessResult(ref daemon.ServiceRef) error  { return p.Process(ref) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDirect(t *testing.T) (*daemon.Table, *Dispatcher) {
	t.Helper()
	tab := daemon.NewTable()
	sel := NewSelector()
	sel.SetDirect(true)
	d := New(tableProcessor{tab}, Config{Selector: sel, Logger: quietLogger()})
	t.Cleanup(func() {
		d.Close()
		tab.CloseAll()
	})
	return tab, d
}

func TestWatchRequiresExecutionContext(t *testing.T) {
	tab := daemon.NewTable()
	defer tab.CloseAll()
	d := New(tableProcessor{tab}, Config{Selector: NewSelector(), Logger: quietLogger()})
	defer d.Close()

	ref, err := tab.Open()
	require.NoError(t, err)

	assert.ErrorIs(t, d.Watch(ref, nil), ErrNoExecutionContext)
	assert.Equal(t, 0, d.Len())
	assert.ErrorIs(t, d.Deliver(func() {}), ErrNoExecutionContext)
}

func TestWatchUnknownRef(t *testing.T) {
	_, d := newDirect(t)
	assert.ErrorIs(t, d.Watch(99, nil), daemon.ErrBadReference)
}

func TestWatchTwice(t *testing.T) {
	tab, d := newDirect(t)
	ref, _ := tab.Open()

	require.NoError(t, d.Watch(ref, nil))
	assert.ErrorIs(t, d.Watch(ref, nil), ErrAlreadyWatched)
	assert.Equal(t, 1, d.Len())
}

func TestDirectDeliveryInOrder(t *testing.T) {
	tab, d := newDirect(t)
	ref, _ := tab.Open()
	require.NoError(t, d.Watch(ref, nil))

	got := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		require.NoError(t, tab.Post(ref, func() { got <- i }))
	}

	for want := 1; want <= 3; want++ {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d not received", want)
		}
	}
}

func TestQueueDeliveryWaitsForDrain(t *testing.T) {
	tab := daemon.NewTable()
	defer tab.CloseAll()

	q := NewQueue(4)
	sel := NewSelector()
	sel.SetTarget(q)
	d := New(tableProcessor{tab}, Config{Selector: sel, Logger: quietLogger()})
	defer d.Close()

	ref, _ := tab.Open()
	require.NoError(t, d.Watch(ref, nil))

	var ran atomic.Int32
	require.NoError(t, tab.Post(ref, func() { ran.Add(1) }))
	require.NoError(t, tab.Post(ref, func() { ran.Add(1) }))

	require.Eventually(t, func() bool { return q.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), ran.Load(), "nothing runs before the host drains")

	// The second reply is only handed over after the first completes.
	assert.Equal(t, 1, q.Drain())
	require.Eventually(t, func() bool { return q.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, int32(2), ran.Load())
}

func TestUnwatchStopsDelivery(t *testing.T) {
	tab, d := newDirect(t)
	ref, _ := tab.Open()
	require.NoError(t, d.Watch(ref, nil))

	d.Unwatch(ref)
	d.Unwatch(ref) // unknown now, no-op
	assert.Equal(t, 0, d.Len())
	assert.False(t, d.Watching(ref))

	var ran atomic.Bool
	require.NoError(t, tab.Post(ref, func() { ran.Store(true) }))
	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestCallbackMayUnwatchItself(t *testing.T) {
	tab, d := newDirect(t)
	ref, _ := tab.Open()
	require.NoError(t, d.Watch(ref, nil))

	var count atomic.Int32
	require.NoError(t, tab.Post(ref, func() {
		count.Add(1)
		d.Unwatch(ref)
	}))
	require.NoError(t, tab.Post(ref, func() { count.Add(1) }))

	require.Eventually(t, func() bool { return d.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestPanicInCallbackIsContained(t *testing.T) {
	tab, d := newDirect(t)
	ref, _ := tab.Open()
	require.NoError(t, d.Watch(ref, nil))

	done := make(chan struct{})
	require.NoError(t, tab.Post(ref, func() { panic("boom") }))
	require.NoError(t, tab.Post(ref, func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery stopped after panic")
	}
	assert.True(t, d.Watching(ref))
}

func TestProcessFailureDropsWatch(t *testing.T) {
	tab, d := newDirect(t)
	ref, _ := tab.Open()

	type abandoned struct {
		ref daemon.ServiceRef
		err error
	}
	got := make(chan abandoned, 2)
	require.NoError(t, d.Watch(ref, func(r daemon.ServiceRef, err error) {
		got <- abandoned{r, err}
	}))

	var ran atomic.Bool
	require.NoError(t, tab.Post(ref, func() { ran.Store(true) }))
	require.Eventually(t, ran.Load, 2*time.Second, 5*time.Millisecond)

	// Closing the write end makes the descriptor hang up; processing then
	// fails with a bad reference.
	tab.Close(ref)

	select {
	case a := <-got:
		assert.Equal(t, ref, a.ref)
		assert.ErrorIs(t, a.err, daemon.ErrBadReference)
	case <-time.After(2 * time.Second):
		t.Fatal("abandon not reported")
	}
	assert.False(t, d.Watching(ref))
	assert.Equal(t, 0, d.Len())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, got, "abandon reported once")
}

func TestUnwatchDoesNotReportAbandon(t *testing.T) {
	tab, d := newDirect(t)
	ref, _ := tab.Open()

	var called atomic.Bool
	require.NoError(t, d.Watch(ref, func(daemon.ServiceRef, error) { called.Store(true) }))

	d.Unwatch(ref)
	tab.Close(ref)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, called.Load())
}

func TestPanicInAbandonIsContained(t *testing.T) {
	tab, d := newDirect(t)
	ref, _ := tab.Open()
	require.NoError(t, d.Watch(ref, func(daemon.ServiceRef, error) { panic("boom") }))

	tab.Close(ref)
	require.Eventually(t, func() bool { return d.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestCloseDoesNotWaitForFullQueue(t *testing.T) {
	tab := daemon.NewTable()
	defer tab.CloseAll()

	q := NewQueue(1)
	sel := NewSelector()
	sel.SetTarget(q)
	d := New(tableProcessor{tab}, Config{Selector: sel, Logger: quietLogger()})

	ref, _ := tab.Open()
	var abandoned atomic.Bool
	require.NoError(t, d.Watch(ref, func(daemon.ServiceRef, error) { abandoned.Store(true) }))

	// Fill the queue so the next hand-over blocks, then give the wait loop
	// a reply to hand over.
	require.NoError(t, q.Execute(func() {}))
	require.NoError(t, tab.Post(ref, func() {}))
	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on an undrained queue")
	}
	assert.Equal(t, 1, q.Len())
	assert.False(t, abandoned.Load())
}

func TestDeliverUsesExecutor(t *testing.T) {
	tab := daemon.NewTable()
	defer tab.CloseAll()

	q := NewQueue(2)
	sel := NewSelector()
	sel.SetTarget(q)
	d := New(tableProcessor{tab}, Config{Selector: sel, Logger: quietLogger()})
	defer d.Close()

	var ran bool
	require.NoError(t, d.Deliver(func() { ran = true }))
	assert.False(t, ran)
	assert.Equal(t, 1, q.Drain())
	assert.True(t, ran)

	require.NoError(t, d.Deliver(func() { panic("contained") }))
	assert.NotPanics(t, func() { q.Drain() })
}

func TestCloseUnwatchesEverything(t *testing.T) {
	tab := daemon.NewTable()
	defer tab.CloseAll()
	sel := NewSelector()
	sel.SetDirect(true)
	d := New(tableProcessor{tab}, Config{Selector: sel, Logger: quietLogger()})

	for i := 0; i < 3; i++ {
		ref, _ := tab.Open()
		require.NoError(t, d.Watch(ref, nil))
	}
	assert.Equal(t, 3, d.Len())

	d.Close()
	d.Close()
	assert.Equal(t, 0, d.Len())

	ref, _ := tab.Open()
	assert.ErrorIs(t, d.Watch(ref, nil), ErrClosed)
}

func TestQueueRunAndClose(t *testing.T) {
	q := NewQueue(1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()

	ran := make(chan struct{})
	require.NoError(t, q.Execute(func() { close(ran) }))
	<-ran

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.Execute(func() {}), ErrQueueClosed)
	assert.ErrorIs(t, q.ExecuteUntil(func() {}, nil), ErrQueueClosed)
	assert.NoError(t, q.Run(context.Background()))
}

func TestQueueExecuteUntil(t *testing.T) {
	q := NewQueue(1)
	cancel := make(chan struct{})

	require.NoError(t, q.ExecuteUntil(func() {}, cancel))

	errc := make(chan error, 1)
	go func() { errc <- q.ExecuteUntil(func() {}, cancel) }()
	time.Sleep(20 * time.Millisecond)
	close(cancel)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteUntil ignored cancel")
	}
	assert.Equal(t, 1, q.Len())
	assert.ErrorIs(t, q.ExecuteUntil(func() {}, cancel), ErrCanceled)
}
