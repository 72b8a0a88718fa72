// Package export writes scored events as a flat delimited-text table for
// external consumers.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"riskscope/internal/event"
)

// Header is the exported column order: the event table schema plus the
// scoring annotations.
var Header = []string{"event_id", "timestamp", "user_id", "file_id", "file_type", "action", "file_size_bytes", "is_anomaly", "risk_score"}

// WriteCSV exports scored events to path, one row per event.
func WriteCSV(path string, scored []event.ScoredEvent) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	return Write(f, scored)
}

// Write streams the scored table to w.
func Write(w io.Writer, scored []event.ScoredEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, se := range scored {
		rec := []string{
			se.EventID,
			se.Timestamp.Format(time.RFC3339),
			se.UserID,
			se.FileID,
			se.FileType,
			se.Action,
			strconv.FormatInt(se.FileSizeBytes, 10),
			strconv.FormatBool(se.IsAnomaly),
			strconv.Itoa(se.RiskScore),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}
