package daemon

import (
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// readable polls fd once with a short timeout.
func readable(t *testing.T, fd int, timeout time.Duration) bool {
	t.Helper()
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil && err != unix.EINTR {
		t.Fatalf("poll: %v", err)
	}
	return n > 0
}

func TestTableOpenIssuesDistinctRefs(t *testing.T) {
	tab := NewTable()
	defer tab.CloseAll()

	a, err := tab.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, err := tab.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a == 0 || b == 0 || a == b {
		t.Fatalf("refs = %d, %d; want distinct non-zero", a, b)
	}
	if tab.Len() != 2 {
		t.Errorf("Len = %d, want 2", tab.Len())
	}
}

func TestTablePostMakesDescriptorReadable(t *testing.T) {
	tab := NewTable()
	defer tab.CloseAll()

	ref, _ := tab.Open()
	fd, err := tab.FD(ref)
	if err != nil {
		t.Fatalf("FD: %v", err)
	}

	if readable(t, fd, 10*time.Millisecond) {
		t.Fatal("descriptor readable before any post")
	}

	if err := tab.Post(ref, func() {}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if !readable(t, fd, time.Second) {
		t.Fatal("descriptor not readable after post")
	}
}

func TestTableProcessRunsRepliesInOrder(t *testing.T) {
	tab := NewTable()
	defer tab.CloseAll()

	ref, _ := tab.Open()
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		if err := tab.Post(ref, func() { got = append(got, i) }); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		if err := tab.Process(ref); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", got)
	}

	fd, _ := tab.FD(ref)
	if readable(t, fd, 10*time.Millisecond) {
		t.Error("descriptor still readable after draining")
	}
}

func TestTableProcessMayReenter(t *testing.T) {
	tab := NewTable()
	defer tab.CloseAll()

	ref, _ := tab.Open()
	done := make(chan struct{})
	_ = tab.Post(ref, func() {
		// Callbacks commonly release their own reference.
		tab.Close(ref)
		close(done)
	})

	if err := tab.Process(ref); err != nil {
		t.Fatalf("Process: %v", err)
	}
	<-done
	if tab.Has(ref) {
		t.Error("ref still open")
	}
}

func TestTableClosedRef(t *testing.T) {
	tab := NewTable()
	ref, _ := tab.Open()
	tab.Close(ref)
	tab.Close(ref) // idempotent

	if err := tab.Post(ref, func() {}); !errors.Is(err, ErrBadReference) {
		t.Errorf("Post after close = %v, want ErrBadReference", err)
	}
	if _, err := tab.FD(ref); !errors.Is(err, ErrBadReference) {
		t.Errorf("FD after close = %v, want ErrBadReference", err)
	}
	if err := tab.Process(ref); !errors.Is(err, ErrBadReference) {
		t.Errorf("Process after close = %v, want ErrBadReference", err)
	}
}

func TestTableConcurrentPost(t *testing.T) {
	tab := NewTable()
	defer tab.CloseAll()

	ref, _ := tab.Open()
	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tab.Post(ref, func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		if err := tab.Process(ref); err != nil {
			t.Fatalf("Process %d: %v", i, err)
		}
	}
	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}
