package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder records events for testing.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
	logger.Log(Event{Error: &ErrorEventData{Message: "ignored"}})
}

func TestMultiLoggerCallsAll(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	multi := NewMultiLogger(a, b, NoopLogger{})

	multi.Log(Event{SessionID: "s-1", Category: CategoryState})

	for i, r := range []*recorder{a, b} {
		if len(r.events) != 1 || r.events[0].SessionID != "s-1" {
			t.Errorf("logger %d: events = %+v", i, r.events)
		}
	}

	NewMultiLogger().Log(Event{})
}

func TestFileLoggerAppendsAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.dlog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), SessionID: "s", Category: CategoryOperation,
			Operation: &OperationEvent{Op: "register", Ref: uint64(i + 1)}})
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("second Close = %v", err)
		}
		logger.Log(Event{SessionID: "dropped"})
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("trace file is empty")
	}

	events := readAll(t, path, Filter{})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Operation.Ref != 2 {
		t.Errorf("second event ref = %d, want 2", events[1].Operation.Ref)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.dlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(Event{Timestamp: time.Now(), SessionID: "c", Category: CategoryReply,
				Reply: &ReplyEvent{Op: "query", Ref: 1}})
		}()
	}
	wg.Wait()
	logger.Close()

	if n := len(readAll(t, path, Filter{})); n != 20 {
		t.Errorf("got %d events, want 20", n)
	}
}

func TestSlogAdapterWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	code := -65548
	adapter.Log(Event{
		SessionID: "s-9", Service: "x._http._tcp.local.",
		Direction: DirectionIn, Layer: LayerSession, Category: CategoryError,
		Error: &ErrorEventData{Op: "register", Message: "conflict", Code: &code},
	})
	adapter.Log(Event{
		SessionID: "s-9", Category: CategoryReply,
		Reply: &ReplyEvent{Op: "query", Ref: 4, Flags: 2, Stale: true},
	})

	out := buf.String()
	for _, want := range []string{
		"session_id=s-9", "service=x._http._tcp.local.", "category=ERROR",
		"error_op=register", "error_code=-65548", "ref=4", "flags=2", "stale=true",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFileLoggerReportsUnwritableEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.dlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var buf bytes.Buffer
	logger.SetErrorLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	logger.Log(Event{Timestamp: time.Now(), SessionID: "bad", Category: CategoryState})
	logger.Log(Event{Timestamp: time.Now(), SessionID: "good", Category: CategoryState,
		StateChange: &StateChangeEvent{NewState: "IDLE"}})
	logger.Close()

	if got := logger.Failed(); got != 1 {
		t.Errorf("Failed() = %d, want 1", got)
	}
	out := buf.String()
	for _, want := range []string{"trace event not written", "session_id=bad", "category=STATE", "component=trace"} {
		if !strings.Contains(out, want) {
			t.Errorf("error log missing %q:\n%s", want, out)
		}
	}

	events := readAll(t, path, Filter{})
	if len(events) != 1 || events[0].SessionID != "good" {
		t.Errorf("events = %+v, want only the valid one", events)
	}
}
