package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/mash-protocol/dnssd-go/pkg/daemon"
)

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Processor is the part of the daemon contract the dispatcher drives.
type Processor interface {
	SocketFD(ref daemon.ServiceRef) (int, error)
	ProcessResult(ref daemon.ServiceRef) error
}

// AbandonFunc is told that a watch was dropped because its reference can no
// longer be serviced. It runs on the wait goroutine, not on the executor.
type AbandonFunc func(ref daemon.ServiceRef, err error)

// Config configures a Dispatcher.
type Config struct {
	// Selector picks the executor for each delivery. Defaults to
	// DefaultSelector().
	Selector *Selector

	// Logger receives dispatch diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher waits on daemon references and delivers each pending reply by
// running ProcessResult on the configured executor.
type Dispatcher struct {
	proc     Processor
	selector *Selector
	logger   *slog.Logger
	registry *Registry

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a dispatcher for p.
func New(p Processor, cfg Config) *Dispatcher {
	sel := cfg.Selector
	if sel == nil {
		sel = DefaultSelector()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		proc:     p,
		selector: sel,
		logger:   logger.With("component", "dispatch"),
		registry: NewRegistry(),
	}
}

// Selector returns the selector deliveries are routed through.
func (d *Dispatcher) Selector() *Selector {
	return d.selector
}

// Watch starts delivering replies for ref. It fails with
// ErrNoExecutionContext when the selector has nowhere to run them.
// If waiting, handing over or processing later fails, the watch is dropped
// and onAbandon, when non-nil, receives the error. An Unwatch never calls it.
func (d *Dispatcher) Watch(ref daemon.ServiceRef, onAbandon AbandonFunc) error {
	if _, err := d.selector.Current(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	fd, err := d.proc.SocketFD(ref)
	if err != nil {
		return fmt.Errorf("watch ref %d: %w", ref, err)
	}
	f, err := dupDescriptor(fd, fmt.Sprintf("dnssd-ref-%d", ref))
	if err != nil {
		return fmt.Errorf("watch ref %d: %w", ref, err)
	}

	w := newWatch(ref, f)
	w.onAbandon = onAbandon
	if err := d.registry.Add(w); err != nil {
		_ = f.Close()
		return err
	}

	d.wg.Add(1)
	go d.run(w)
	d.logger.Debug("watching", "ref", ref, "fd", fd)
	return nil
}

// Unwatch stops deliveries for ref. A delivery already running completes,
// but none starts afterwards. Unknown refs are ignored.
func (d *Dispatcher) Unwatch(ref daemon.ServiceRef) {
	if w := d.registry.Remove(ref); w != nil {
		w.release()
		d.logger.Debug("unwatched", "ref", ref)
	}
}

// Watching reports whether ref is being watched.
func (d *Dispatcher) Watching(ref daemon.ServiceRef) bool {
	_, ok := d.registry.Get(ref)
	return ok
}

// Len returns the number of watched references.
func (d *Dispatcher) Len() int {
	return d.registry.Len()
}

// Deliver runs fn on the current executor with the same panic boundary as
// replies. Used for results that do not come from the daemon, such as
// timeouts.
func (d *Dispatcher) Deliver(fn func()) error {
	ex, err := d.selector.Current()
	if err != nil {
		return err
	}
	return ex.Execute(d.guard(fn))
}

// Close unwatches every reference and waits for the wait loops to exit.
// It must not be called from a delivered callback.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	for _, ref := range d.registry.Refs() {
		d.Unwatch(ref)
	}
	d.wg.Wait()
}

func (d *Dispatcher) run(w *Watch) {
	defer d.wg.Done()

	for {
		if err := waitReadable(w.file); err != nil {
			if !w.Stopping() {
				d.logger.Warn("wait failed", "ref", w.ref, "error", err)
				d.abandon(w, err)
			}
			return
		}
		if w.Stopping() {
			return
		}

		ex, err := d.selector.Current()
		if err != nil {
			d.logger.Error("reply dropped", "ref", w.ref, "error", err)
			d.abandon(w, err)
			return
		}

		done := make(chan struct{})
		var perr error
		err = executeUntil(ex, d.guard(func() {
			defer close(done)
			if w.Stopping() {
				return
			}
			perr = d.proc.ProcessResult(w.ref)
		}), w.Done())
		if err != nil {
			if !w.Stopping() {
				d.logger.Error("execute failed", "ref", w.ref, "error", err)
				d.abandon(w, err)
			}
			return
		}

		select {
		case <-done:
		case <-w.Done():
			return
		}

		if perr != nil && !w.Stopping() {
			d.logger.Error("process result failed", "ref", w.ref, "error", perr)
			d.abandon(w, perr)
			return
		}
	}
}

// abandon tears down a watch whose loop can no longer make progress and
// reports it, unless an Unwatch got there first.
func (d *Dispatcher) abandon(w *Watch, err error) {
	removed := d.registry.removeIf(w)
	w.release()
	if removed && w.onAbandon != nil {
		d.guard(func() { w.onAbandon(w.ref, err) })()
	}
}

func (d *Dispatcher) guard(fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("panic in delivered callback",
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}
}
