package commands

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mash-protocol/dnssd-go/pkg/log"
)

func exportFixture(t *testing.T) string {
	t.Helper()
	ts := time.Date(2026, 3, 2, 10, 15, 32, 123456000, time.UTC)
	return createTestLogFile(t, []log.Event{
		{
			Timestamp: ts,
			SessionID: "abc12345",
			Service:   "printer._ipp._tcp.local.",
			Direction: log.DirectionOut,
			Layer:     log.LayerSession,
			Category:  log.CategoryOperation,
			Operation: &log.OperationEvent{Op: "resolve", Ref: 4},
		},
		{
			Timestamp: ts.Add(time.Millisecond),
			SessionID: "abc12345",
			Direction: log.DirectionIn,
			Layer:     log.LayerSession,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				OldState: "IDLE",
				NewState: "RESOLVING",
			},
		},
	})
}

func TestExportToJSONL(t *testing.T) {
	path := exportFixture(t)
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		var decoded map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("line %d not JSON: %v", lines, err)
		}
		if decoded["SessionID"] != "abc12345" {
			t.Errorf("line %d SessionID = %v", lines, decoded["SessionID"])
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 lines, got %d", lines)
	}
}

func TestExportToCSV(t *testing.T) {
	path := exportFixture(t)
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if records[0][0] != "timestamp" {
		t.Errorf("unexpected header: %v", records[0])
	}

	op := records[1]
	if op[1] != "abc12345" || op[3] != "OUT" || op[4] != "SESSION" || op[6] != "resolve" || op[7] != "4" {
		t.Errorf("unexpected operation row: %v", op)
	}
	if records[2][8] != "IDLE->RESOLVING" {
		t.Errorf("unexpected state detail: %q", records[2][8])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := exportFixture(t)
	if err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out.xml")); err == nil {
		t.Error("expected error for unknown format")
	}
}
