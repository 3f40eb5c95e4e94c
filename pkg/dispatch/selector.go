package dispatch

import (
	"errors"
	"sync"
)

// ErrNoExecutionContext is returned when no executor is configured to receive
// results.
var ErrNoExecutionContext = errors.New("no execution context configured")

// Selector decides which executor runs delivered results.
//
// Resolution order is an explicit target, then the host locator, then direct
// invocation on the dispatch goroutine. Direct invocation is opt-in so that
// an application that forgets to configure anything gets an error rather than
// callbacks on a goroutine it does not own.
type Selector struct {
	mu      sync.RWMutex
	target  Executor
	locator func() (Executor, bool)
	direct  bool
}

// NewSelector creates a selector with nothing configured.
func NewSelector() *Selector {
	return &Selector{}
}

var defaultSelector = NewSelector()

// DefaultSelector returns the process-wide selector used by dispatchers
// created without one.
func DefaultSelector() *Selector {
	return defaultSelector
}

// SetTarget routes results to e. A nil e clears the target.
// Setting a target turns direct invocation off.
func (s *Selector) SetTarget(e Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = e
	if e != nil {
		s.direct = false
	}
}

// SetHostLocator installs a best-effort lookup of the host application's
// executor, consulted when no target is set. A nil fn removes it.
func (s *Selector) SetHostLocator(fn func() (Executor, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locator = fn
	if fn != nil {
		s.direct = false
	}
}

// SetDirect enables or disables direct invocation. Enabling it clears the
// target and host locator.
func (s *Selector) SetDirect(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct = on
	if on {
		s.target = nil
		s.locator = nil
	}
}

// Direct reports whether direct invocation is enabled.
func (s *Selector) Direct() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct
}

// Current returns the executor results should run on right now.
func (s *Selector) Current() (Executor, error) {
	s.mu.RLock()
	target, locator, direct := s.target, s.locator, s.direct
	s.mu.RUnlock()

	if target != nil {
		return target, nil
	}
	if locator != nil {
		if e, ok := locator(); ok && e != nil {
			return e, nil
		}
	}
	if direct {
		return DirectExecutor{}, nil
	}
	return nil, ErrNoExecutionContext
}
