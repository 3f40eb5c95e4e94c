package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/dnssd-go/pkg/log"
)

func TestRunStats(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	code := -65537
	path := createTestLogFile(t, []log.Event{
		{Timestamp: base, SessionID: "sess-aaaaaaaa", Service: "a._ipp._tcp.local.", Direction: log.DirectionOut, Layer: log.LayerSession, Category: log.CategoryOperation, Operation: &log.OperationEvent{Op: "resolve"}},
		{Timestamp: base.Add(time.Second), SessionID: "sess-aaaaaaaa", Direction: log.DirectionIn, Layer: log.LayerDispatch, Category: log.CategoryReply, Reply: &log.ReplyEvent{Op: "resolve", Stale: true}},
		{Timestamp: base.Add(2 * time.Second), SessionID: "sess-aaaaaaaa", Direction: log.DirectionIn, Layer: log.LayerSession, Category: log.CategoryState, StateChange: &log.StateChangeEvent{OldState: "IDLE", NewState: "RESOLVING"}},
		{Timestamp: base.Add(3 * time.Second), SessionID: "sess-bbbbbbbb", Direction: log.DirectionIn, Layer: log.LayerSession, Category: log.CategoryError, Error: &log.ErrorEventData{Op: "register", Message: "unknown", Code: &code}},
	})

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 4",
		"DISPATCH:",
		"SESSION:",
		"Sessions: 2",
		"[sess-aaa] 3 events",
		"Service: a._ipp._tcp.local.",
		"Operations: resolve=1",
		"Last state: RESOLVING",
		"Stale replies: 1",
		"Errors: 1",
		"Duration:   3s",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestRunStatsEmpty(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Errorf("empty trace printed a time range:\n%s", buf.String())
	}
}
