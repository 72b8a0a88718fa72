// Package features derives the per-event numeric representation fed to the
// anomaly estimator.
//
// The per-user frequency features are computed over the full batch (count of
// events for that user in the current dataset), not a true sliding window.
// This is a deliberate simplification carried over from the original demo:
// risk scores are reproducible against a fixed dataset, at the cost of not
// modeling behavior drift within the batch.
package features

import (
	"math"
	"time"

	"riskscope/internal/config"
	"riskscope/internal/event"
)

// Feature names in the exact order they appear in every vector. A trained
// model records this list; any change invalidates persisted models.
var featureNames = []string{
	"hour",
	"day_of_week",
	"is_weekend",
	"off_hours",
	"log_size_bytes",
	"size_risk",
	"file_type_risk",
	"action_code",
	"user_event_count",
	"user_download_ratio",
}

// fileTypeRisk ranks file types by typical sensitivity. Types outside the
// recognized set score the "other" floor.
var fileTypeRisk = map[string]float64{
	"Database export": 10,
	"PDF":             7,
	"Excel":           6,
	"CSV":             5,
	"Doc":             4,
	"PPT":             3,
	"Image":           2,
}

const otherRisk = 1

// Vector is one event's feature values, ordered by FeatureNames.
type Vector []float64

// FeatureNames returns a copy of the ordered feature schema.
func FeatureNames() []string {
	return append([]string(nil), featureNames...)
}

// Builder turns access events into feature vectors. It is a pure
// transformation; building has no side effects.
type Builder struct {
	cfg       config.FeatureConfig
	fileTypes map[string]bool
	actions   map[string]int
}

// NewBuilder creates a Builder for the configured enumerated sets and
// working-hour window.
func NewBuilder(cfg config.FeatureConfig) *Builder {
	fileTypes := make(map[string]bool, len(cfg.RecognizedFileTypes))
	for _, t := range cfg.RecognizedFileTypes {
		fileTypes[t] = true
	}

	// Action codes are ordinal positions in the configured list, starting at
	// 1. Zero is reserved for the "other" bucket.
	actions := make(map[string]int, len(cfg.RecognizedActions))
	for i, a := range cfg.RecognizedActions {
		actions[a] = i + 1
	}

	return &Builder{cfg: cfg, fileTypes: fileTypes, actions: actions}
}

// Build derives one feature vector per input event, same order and count.
func (b *Builder) Build(events []event.AccessEvent) []Vector {
	counts, downloadRatios := userStats(events)

	vectors := make([]Vector, len(events))
	for i, e := range events {
		vectors[i] = b.vector(e, counts[e.UserID], downloadRatios[e.UserID])
	}
	return vectors
}

func (b *Builder) vector(e event.AccessEvent, userCount int, downloadRatio float64) Vector {
	hour := e.Hour()
	dow := int(e.Timestamp.Weekday())

	weekend := 0.0
	if e.Timestamp.Weekday() == time.Saturday || e.Timestamp.Weekday() == time.Sunday {
		weekend = 1.0
	}

	offHours := 0.0
	if !b.withinWorkingHours(hour) {
		offHours = 1.0
	}

	return Vector{
		float64(hour),
		float64(dow),
		weekend,
		offHours,
		math.Log1p(float64(e.FileSizeBytes)),
		sizeRisk(e.FileSizeBytes),
		b.typeRisk(e.FileType),
		float64(b.actionCode(e.Action)),
		float64(userCount),
		downloadRatio,
	}
}

// withinWorkingHours reports whether hour falls inside the configured window.
// The window is [start, end): the start hour is working time, the end hour is
// already off-hours.
func (b *Builder) withinWorkingHours(hour int) bool {
	return hour >= b.cfg.WorkStartHour && hour < b.cfg.WorkEndHour
}

func (b *Builder) typeRisk(fileType string) float64 {
	if !b.fileTypes[fileType] {
		return otherRisk
	}
	if risk, ok := fileTypeRisk[fileType]; ok {
		return risk
	}
	return otherRisk
}

func (b *Builder) actionCode(action string) int {
	return b.actions[action]
}

// sizeRisk assigns a tiered weight by file size.
func sizeRisk(sizeBytes int64) float64 {
	const mb = 1 << 20
	switch {
	case sizeBytes > 100*mb:
		return 10
	case sizeBytes > 50*mb:
		return 7
	case sizeBytes > 10*mb:
		return 4
	default:
		return 1
	}
}

// userStats computes whole-batch per-user event counts and download ratios.
// Downloads and exports both count as download-like for the ratio.
func userStats(events []event.AccessEvent) (map[string]int, map[string]float64) {
	counts := make(map[string]int)
	downloads := make(map[string]int)

	for _, e := range events {
		counts[e.UserID]++
		if e.Action == event.ActionDownload || e.Action == event.ActionExport {
			downloads[e.UserID]++
		}
	}

	ratios := make(map[string]float64, len(counts))
	for user, n := range counts {
		ratios[user] = float64(downloads[user]) / float64(n)
	}
	return counts, ratios
}

// Matrix flattens vectors into the [][]float64 shape the estimator consumes.
func Matrix(vectors []Vector) [][]float64 {
	m := make([][]float64, len(vectors))
	for i, v := range vectors {
		m[i] = v
	}
	return m
}
