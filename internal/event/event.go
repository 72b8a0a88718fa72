// Package event defines the access-event record shared by every pipeline stage.
package event

import (
	"fmt"
	"time"
)

// Recognized actions. Values outside the configured set are mapped to an
// "other" bucket by the feature builder rather than rejected.
const (
	ActionView     = "view"
	ActionDownload = "download"
	ActionExport   = "export"
)

// OtherBucket is the catch-all category for file types and actions that are
// not in the configured recognized sets.
const OtherBucket = "other"

// AccessEvent is one simulated file access. Immutable once generated.
type AccessEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	UserID        string    `json:"user_id"`
	FileID        string    `json:"file_id"`
	FileType      string    `json:"file_type"`
	Action        string    `json:"action"`
	FileSizeBytes int64     `json:"file_size_bytes"`
}

// Hour returns the event's hour of day in local time, 0-23.
func (e AccessEvent) Hour() int {
	return e.Timestamp.Hour()
}

// ValidationError describes a rejected event row with enough context to
// diagnose the offending field.
type ValidationError struct {
	Row    int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("event: row %d: %s: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("event: %s: %s", e.Field, e.Reason)
}

// Validate checks the required fields of a single event. Unknown file types
// and actions pass validation; bucketing them is the feature builder's job.
// row is used only for error context; pass -1 when not iterating a table.
func (e AccessEvent) Validate(row int) error {
	switch {
	case e.EventID == "":
		return &ValidationError{Row: row, Field: "event_id", Reason: "missing"}
	case e.Timestamp.IsZero():
		return &ValidationError{Row: row, Field: "timestamp", Reason: "missing or malformed"}
	case e.UserID == "":
		return &ValidationError{Row: row, Field: "user_id", Reason: "missing"}
	case e.FileID == "":
		return &ValidationError{Row: row, Field: "file_id", Reason: "missing"}
	case e.FileType == "":
		return &ValidationError{Row: row, Field: "file_type", Reason: "missing"}
	case e.Action == "":
		return &ValidationError{Row: row, Field: "action", Reason: "missing"}
	case e.FileSizeBytes < 0:
		return &ValidationError{Row: row, Field: "file_size_bytes", Reason: fmt.Sprintf("negative size %d", e.FileSizeBytes)}
	}
	return nil
}

// ValidateAll validates a batch. When dropInvalid is true, offending rows are
// removed and the number dropped is returned; otherwise the first bad row is
// fatal for the whole batch.
func ValidateAll(events []AccessEvent, dropInvalid bool) ([]AccessEvent, int, error) {
	if !dropInvalid {
		for i, e := range events {
			if err := e.Validate(i); err != nil {
				return nil, 0, err
			}
		}
		return events, 0, nil
	}

	kept := events[:0:0]
	dropped := 0
	for i, e := range events {
		if err := e.Validate(i); err != nil {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	return kept, dropped, nil
}
