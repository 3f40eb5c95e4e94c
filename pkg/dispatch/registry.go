package dispatch

import (
	"errors"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mash-protocol/dnssd-go/pkg/daemon"
)

// ErrAlreadyWatched is returned when a reference is watched twice.
var ErrAlreadyWatched = errors.New("reference already watched")

// Watch is the readiness-wait state of one daemon reference.
type Watch struct {
	ref       daemon.ServiceRef
	onAbandon AbandonFunc

	// file is the watch's own duplicate of the daemon descriptor.
	file *os.File

	stopping atomic.Bool
	stop     chan struct{}
	once     sync.Once
}

func newWatch(ref daemon.ServiceRef, file *os.File) *Watch {
	return &Watch{ref: ref, file: file, stop: make(chan struct{})}
}

// Ref returns the watched reference.
func (w *Watch) Ref() daemon.ServiceRef {
	return w.ref
}

// Stopping reports whether the watch has been torn down.
func (w *Watch) Stopping() bool {
	return w.stopping.Load()
}

// Done is closed once the watch starts stopping.
func (w *Watch) Done() <-chan struct{} {
	return w.stop
}

// release sets the stopping flag and closes the duplicate descriptor, which
// wakes a pending wait. Safe to call more than once.
func (w *Watch) release() {
	w.once.Do(func() {
		w.stopping.Store(true)
		close(w.stop)
		if w.file != nil {
			_ = w.file.Close()
		}
	})
}

// Registry maps active references to their watches.
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	watches map[daemon.ServiceRef]*Watch
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{watches: make(map[daemon.ServiceRef]*Watch)}
}

// Add stores w. A reference can only be watched once at a time.
func (r *Registry) Add(w *Watch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.watches[w.ref]; exists {
		return ErrAlreadyWatched
	}
	r.watches[w.ref] = w
	return nil
}

// Remove deletes and returns the watch for ref, or nil.
func (r *Registry) Remove(ref daemon.ServiceRef) *Watch {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.watches[ref]
	delete(r.watches, ref)
	return w
}

// removeIf deletes ref only while it still maps to w and reports whether it
// did.
func (r *Registry) removeIf(w *Watch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watches[w.ref] != w {
		return false
	}
	delete(r.watches, w.ref)
	return true
}

// Get returns the watch for ref.
func (r *Registry) Get(ref daemon.ServiceRef) (*Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watches[ref]
	return w, ok
}

// Len returns the number of watched references.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// Refs returns the watched references in ascending order.
func (r *Registry) Refs() []daemon.ServiceRef {
	r.mu.Lock()
	refs := make([]daemon.ServiceRef, 0, len(r.watches))
	for ref := range r.watches {
		refs = append(refs, ref)
	}
	r.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}
