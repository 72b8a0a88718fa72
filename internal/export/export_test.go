package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"riskscope/internal/event"
)

func sampleScored() []event.ScoredEvent {
	ts := time.Date(2025, 3, 5, 2, 15, 0, 0, time.UTC)
	return []event.ScoredEvent{
		{
			AccessEvent: event.AccessEvent{
				EventID: "ev-1", Timestamp: ts, UserID: "employee942",
				FileID: "customers", FileType: "Database export",
				Action: event.ActionDownload, FileSizeBytes: 150 << 20,
			},
			IsAnomaly: true, RawScore: -0.62, RiskScore: 97,
		},
		{
			AccessEvent: event.AccessEvent{
				EventID: "ev-2", Timestamp: ts.Add(7 * time.Hour), UserID: "employee17",
				FileID: "notes", FileType: "Doc",
				Action: event.ActionView, FileSizeBytes: 4 << 20,
			},
			RawScore: -0.38, RiskScore: 12,
		},
	}
}

func TestWriteProducesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleScored()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading exported CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("exported %d records, want header + 2 rows", len(records))
	}

	if got, want := strings.Join(records[0], ","), strings.Join(Header, ","); got != want {
		t.Errorf("header = %q, want %q", got, want)
	}

	row := records[1]
	if row[0] != "ev-1" {
		t.Errorf("event_id = %q, want ev-1", row[0])
	}
	if row[1] != "2025-03-05T02:15:00Z" {
		t.Errorf("timestamp = %q, want RFC3339", row[1])
	}
	if row[7] != "true" {
		t.Errorf("is_anomaly = %q, want true", row[7])
	}
	if row[8] != "97" {
		t.Errorf("risk_score = %q, want 97", row[8])
	}
	if records[2][7] != "false" {
		t.Errorf("is_anomaly = %q, want false", records[2][7])
	}
}

func TestWriteEmptyBatchKeepsHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("empty export has %d lines, want header only", len(lines))
	}
}

func TestWriteCSVCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "scored.csv")
	if err := WriteCSV(path, sampleScored()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if !strings.HasPrefix(string(data), strings.Join(Header, ",")) {
		t.Error("export file missing header row")
	}
}
