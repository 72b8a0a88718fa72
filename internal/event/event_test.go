package event

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validEvent() AccessEvent {
	return AccessEvent{
		EventID:       "ev-1",
		Timestamp:     time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
		UserID:        "employee123",
		FileID:        "report-0042",
		FileType:      "PDF",
		Action:        ActionView,
		FileSizeBytes: 1 << 20,
	}
}

func TestValidateOK(t *testing.T) {
	if err := validEvent().Validate(0); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AccessEvent)
		field  string
	}{
		{"missing user", func(e *AccessEvent) { e.UserID = "" }, "user_id"},
		{"missing file", func(e *AccessEvent) { e.FileID = "" }, "file_id"},
		{"zero timestamp", func(e *AccessEvent) { e.Timestamp = time.Time{} }, "timestamp"},
		{"negative size", func(e *AccessEvent) { e.FileSizeBytes = -1 }, "file_size_bytes"},
		{"missing action", func(e *AccessEvent) { e.Action = "" }, "action"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validEvent()
			tc.mutate(&e)

			err := e.Validate(7)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tc.field {
				t.Errorf("field = %q, want %q", verr.Field, tc.field)
			}
			if verr.Row != 7 {
				t.Errorf("row = %d, want 7", verr.Row)
			}
		})
	}
}

func TestValidateUnknownTypePasses(t *testing.T) {
	e := validEvent()
	e.FileType = "Blueprint"
	e.Action = "print"

	// Unknown categories are bucketed downstream, not rejected here.
	if err := e.Validate(0); err != nil {
		t.Fatalf("unknown category rejected: %v", err)
	}
}

func TestValidateAllFatalByDefault(t *testing.T) {
	bad := validEvent()
	bad.FileSizeBytes = -5

	_, _, err := ValidateAll([]AccessEvent{validEvent(), bad}, false)
	if err == nil {
		t.Fatal("expected batch failure")
	}
}

func TestValidateAllDropInvalid(t *testing.T) {
	bad := validEvent()
	bad.UserID = ""

	kept, dropped, err := ValidateAll([]AccessEvent{validEvent(), bad, validEvent()}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(kept) != 2 {
		t.Errorf("kept = %d, want 2", len(kept))
	}
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")

	want := []AccessEvent{validEvent()}
	second := validEvent()
	second.EventID = "ev-2"
	second.Action = ActionDownload
	second.FileSizeBytes = 0
	want = append(want, second)

	if err := WriteCSV(path, want); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	got, dropped, err := ReadCSV(path, false)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}

	for i := range want {
		if got[i].EventID != want[i].EventID {
			t.Errorf("event %d: id = %q, want %q", i, got[i].EventID, want[i].EventID)
		}
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("event %d: timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if got[i].FileSizeBytes != want[i].FileSizeBytes {
			t.Errorf("event %d: size = %d, want %d", i, got[i].FileSizeBytes, want[i].FileSizeBytes)
		}
	}
}

func TestReadCSVShortRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")

	if err := WriteCSV(path, []AccessEvent{validEvent()}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	// Append a row with a missing column.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("ev-short,2025-03-05T09:00:00Z,alice,report,PDF,view\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, _, err := ReadCSV(path, false); err == nil {
		t.Fatal("short row should be fatal without drop_invalid")
	}

	got, dropped, err := ReadCSV(path, true)
	if err != nil {
		t.Fatalf("ReadCSV with drop: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(got) != 1 {
		t.Errorf("got %d events, want 1", len(got))
	}
}

func TestReadCSVMissingFile(t *testing.T) {
	_, _, err := ReadCSV(filepath.Join(t.TempDir(), "absent.csv"), false)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHighRisk(t *testing.T) {
	se := ScoredEvent{AccessEvent: validEvent(), RiskScore: 71}
	if !se.HighRisk(70) {
		t.Error("risk 71 should exceed threshold 70")
	}
	se.RiskScore = 70
	if se.HighRisk(70) {
		t.Error("risk 70 should not exceed threshold 70")
	}
}
