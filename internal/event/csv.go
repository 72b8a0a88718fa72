package event

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Dataset file header. Column order is part of the external interface.
var csvHeader = []string{"event_id", "timestamp", "user_id", "file_id", "file_type", "action", "file_size_bytes"}

// WriteCSV writes the event table to path, header row first, timestamps in
// RFC 3339.
func WriteCSV(path string, events []AccessEvent) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range events {
		rec := []string{
			e.EventID,
			e.Timestamp.Format(time.RFC3339),
			e.UserID,
			e.FileID,
			e.FileType,
			e.Action,
			strconv.FormatInt(e.FileSizeBytes, 10),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush dataset file: %w", err)
	}
	return nil
}

// ReadCSV loads an event table written by WriteCSV. Malformed rows are fatal
// unless dropInvalid is set, in which case they are skipped and counted.
func ReadCSV(path string, dropInvalid bool) ([]AccessEvent, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open dataset file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, 0, fmt.Errorf("dataset header has %d columns, want %d", len(header), len(csvHeader))
	}

	var events []AccessEvent
	dropped := 0
	row := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A wrong column count is a per-row defect, not a broken file.
			if errors.Is(err, csv.ErrFieldCount) && dropInvalid {
				dropped++
				row++
				continue
			}
			return nil, 0, fmt.Errorf("read row %d: %w", row, err)
		}

		e, perr := parseRow(rec, row)
		if perr == nil {
			perr = e.Validate(row)
		}
		if perr != nil {
			if dropInvalid {
				dropped++
				row++
				continue
			}
			return nil, 0, perr
		}

		events = append(events, e)
		row++
	}

	return events, dropped, nil
}

func parseRow(rec []string, row int) (AccessEvent, error) {
	ts, err := time.Parse(time.RFC3339, rec[1])
	if err != nil {
		return AccessEvent{}, &ValidationError{Row: row, Field: "timestamp", Reason: err.Error()}
	}

	size, err := strconv.ParseInt(rec[6], 10, 64)
	if err != nil {
		return AccessEvent{}, &ValidationError{Row: row, Field: "file_size_bytes", Reason: err.Error()}
	}

	return AccessEvent{
		EventID:       rec[0],
		Timestamp:     ts,
		UserID:        rec[2],
		FileID:        rec[3],
		FileType:      rec[4],
		Action:        rec[5],
		FileSizeBytes: size,
	}, nil
}
