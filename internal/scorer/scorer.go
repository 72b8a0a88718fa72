// Package scorer fits isolation-forest models over feature matrices and
// normalizes raw anomaly scores to the bounded 0-100 risk scale.
package scorer

import (
	"fmt"
	"math"
	"sort"

	"riskscope/internal/iforest"
)

// Model is a fitted estimator together with everything needed to re-apply it:
// the ordered feature schema it was trained on, the contamination rate, and
// the anomaly offset learned from the training scores.
type Model struct {
	Forest        *iforest.Forest
	FeatureNames  []string
	Contamination float64

	// Offset is the contamination quantile of the training raw scores. A raw
	// score below it marks an anomaly.
	Offset float64
}

// Result holds per-event scorer output, index-aligned with the input matrix.
type Result struct {
	Raw       []float64
	IsAnomaly []bool
}

// SchemaMismatchError reports a feature-schema disagreement between a loaded
// model and the current feature builder. Applying the model anyway would
// silently misalign columns, so this is fatal for scoring-only mode.
type SchemaMismatchError struct {
	Want []string
	Got  []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("scorer: feature schema mismatch: model trained on %v, builder produced %v", e.Want, e.Got)
}

// Fit trains a new forest on the matrix and scores it. Contamination must be
// in (0, 0.5); the anomaly threshold is the contamination quantile of the
// training scores.
func Fit(matrix [][]float64, featureNames []string, contamination float64, nEstimators, sampleSize int, seed int64) (*Model, *Result, error) {
	if contamination <= 0 || contamination >= 0.5 {
		return nil, nil, fmt.Errorf("scorer: contamination rate must be in (0, 0.5), got %g", contamination)
	}
	if nEstimators <= 0 {
		return nil, nil, fmt.Errorf("scorer: estimator count must be positive, got %d", nEstimators)
	}

	forest := iforest.New(
		iforest.WithTrees(nEstimators),
		iforest.WithSampleSize(sampleSize),
		iforest.WithSeed(seed),
	)
	if err := forest.Fit(matrix); err != nil {
		return nil, nil, fmt.Errorf("fit forest: %w", err)
	}

	raw, err := forest.ScoreSamples(matrix)
	if err != nil {
		return nil, nil, fmt.Errorf("score training matrix: %w", err)
	}

	model := &Model{
		Forest:        forest,
		FeatureNames:  append([]string(nil), featureNames...),
		Contamination: contamination,
		Offset:        quantile(raw, contamination),
	}

	return model, model.flag(raw), nil
}

// Apply scores the matrix with a previously fitted model. The feature-name
// order must match the training schema exactly.
func Apply(m *Model, matrix [][]float64, featureNames []string) (*Result, error) {
	if err := m.CheckSchema(featureNames); err != nil {
		return nil, err
	}

	raw, err := m.Forest.ScoreSamples(matrix)
	if err != nil {
		return nil, fmt.Errorf("score matrix: %w", err)
	}

	return m.flag(raw), nil
}

// CheckSchema validates builder output against the model's training schema.
func (m *Model) CheckSchema(featureNames []string) error {
	if len(featureNames) != len(m.FeatureNames) {
		return &SchemaMismatchError{Want: m.FeatureNames, Got: featureNames}
	}
	for i, name := range m.FeatureNames {
		if featureNames[i] != name {
			return &SchemaMismatchError{Want: m.FeatureNames, Got: featureNames}
		}
	}
	return nil
}

func (m *Model) flag(raw []float64) *Result {
	flags := make([]bool, len(raw))
	for i, s := range raw {
		flags[i] = s < m.Offset
	}
	return &Result{Raw: raw, IsAnomaly: flags}
}

// RiskScores maps raw scores to integers in [0, 100] via min-max scaling over
// the batch, inverted so that more anomalous (more negative) raw scores get
// higher risk. A degenerate batch where every raw score is identical gets the
// midpoint for every event.
func RiskScores(raw []float64, midpoint int) []int {
	scores := make([]int, len(raw))
	if len(raw) == 0 {
		return scores
	}

	lo, hi := raw[0], raw[0]
	for _, s := range raw {
		// A non-finite score would poison the min-max scaling below.
		if math.IsNaN(s) {
			for i := range scores {
				scores[i] = midpoint
			}
			return scores
		}
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	if hi == lo {
		for i := range scores {
			scores[i] = midpoint
		}
		return scores
	}

	for i, s := range raw {
		risk := (hi - s) / (hi - lo) * 100.0
		scores[i] = clampInt(int(math.Round(risk)), 0, 100)
	}
	return scores
}

// quantile returns the q-quantile of values using nearest-rank on a sorted
// copy.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
