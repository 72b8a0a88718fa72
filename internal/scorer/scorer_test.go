package scorer

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskscope/internal/config"
	"riskscope/internal/event"
	"riskscope/internal/features"
)

func testNames() []string {
	return []string{"a", "b", "c"}
}

// normalMatrix builds a tight cluster in 3 dimensions.
func normalMatrix(rng *rand.Rand, n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = []float64{
			10 + rng.NormFloat64(),
			5 + rng.NormFloat64()*0.5,
			1 + rng.NormFloat64()*0.1,
		}
	}
	return m
}

func TestFitRejectsBadContamination(t *testing.T) {
	matrix := normalMatrix(rand.New(rand.NewSource(1)), 50)

	for _, rate := range []float64{0, -0.1, 0.5, 1.0} {
		_, _, err := Fit(matrix, testNames(), rate, 10, 0, 1)
		assert.Error(t, err, "contamination %g accepted", rate)
	}
}

func TestFitRejectsBadEstimators(t *testing.T) {
	matrix := normalMatrix(rand.New(rand.NewSource(1)), 50)
	_, _, err := Fit(matrix, testNames(), 0.1, 0, 0, 1)
	assert.Error(t, err)
}

func TestFitDeterministicAcrossContaminations(t *testing.T) {
	matrix := normalMatrix(rand.New(rand.NewSource(2)), 200)

	for _, rate := range []float64{0.01, 0.1, 0.25, 0.49} {
		_, resA, err := Fit(matrix, testNames(), rate, 50, 0, 42)
		require.NoError(t, err)
		_, resB, err := Fit(matrix, testNames(), rate, 50, 0, 42)
		require.NoError(t, err)

		assert.Equal(t, resA.Raw, resB.Raw, "raw scores differ at contamination %g", rate)
		assert.Equal(t, resA.IsAnomaly, resB.IsAnomaly, "flags differ at contamination %g", rate)
	}
}

func TestAnomalyFractionTracksContamination(t *testing.T) {
	matrix := normalMatrix(rand.New(rand.NewSource(3)), 1000)

	_, res, err := Fit(matrix, testNames(), 0.1, 100, 0, 42)
	require.NoError(t, err)

	flagged := 0
	for _, a := range res.IsAnomaly {
		if a {
			flagged++
		}
	}
	// Nearest-rank thresholding flags just under the contamination share.
	assert.InDelta(t, 100, flagged, 15)
}

func TestApplySchemaMismatch(t *testing.T) {
	matrix := normalMatrix(rand.New(rand.NewSource(4)), 100)

	model, _, err := Fit(matrix, []string{"A", "B", "C"}, 0.05, 20, 0, 1)
	require.NoError(t, err)

	_, err = Apply(model, matrix, []string{"A", "B", "D"})
	require.Error(t, err)

	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"A", "B", "C"}, mismatch.Want)
	assert.Equal(t, []string{"A", "B", "D"}, mismatch.Got)
}

func TestApplyReproducesTrainingFlags(t *testing.T) {
	matrix := normalMatrix(rand.New(rand.NewSource(5)), 300)

	model, fitRes, err := Fit(matrix, testNames(), 0.05, 50, 0, 7)
	require.NoError(t, err)

	applyRes, err := Apply(model, matrix, testNames())
	require.NoError(t, err)

	assert.Equal(t, fitRes.Raw, applyRes.Raw)
	assert.Equal(t, fitRes.IsAnomaly, applyRes.IsAnomaly)
}

func TestRiskScoresBounds(t *testing.T) {
	for _, n := range []int{1, 2, 10, 500} {
		rng := rand.New(rand.NewSource(int64(n)))
		raw := make([]float64, n)
		for i := range raw {
			raw[i] = -rng.Float64()
		}

		risks := RiskScores(raw, 50)
		require.Len(t, risks, n)
		for i, r := range risks {
			assert.GreaterOrEqual(t, r, 0, "risk %d below 0", i)
			assert.LessOrEqual(t, r, 100, "risk %d above 100", i)
		}
	}
}

func TestRiskScoresDegenerateBatch(t *testing.T) {
	raw := []float64{-0.5, -0.5, -0.5, -0.5}
	for _, r := range RiskScores(raw, 50) {
		assert.Equal(t, 50, r)
	}

	// Single-event batches are degenerate by definition.
	assert.Equal(t, []int{50}, RiskScores([]float64{-0.3}, 50))

	// The midpoint is configurable.
	for _, r := range RiskScores(raw, 40) {
		assert.Equal(t, 40, r)
	}
}

func TestSingleEventBatchEndToEnd(t *testing.T) {
	model, res, err := Fit([][]float64{{3, 2, 1}}, testNames(), 0.02, 10, 0, 42)
	require.NoError(t, err)
	require.Len(t, res.Raw, 1)

	assert.False(t, math.IsNaN(res.Raw[0]), "raw score must be finite")
	assert.False(t, res.IsAnomaly[0], "lone event cannot be anomalous")
	assert.Equal(t, []int{50}, RiskScores(res.Raw, 50))

	// Applying the model back to the same event reproduces the result.
	applied, err := Apply(model, [][]float64{{3, 2, 1}}, testNames())
	require.NoError(t, err)
	assert.Equal(t, res.Raw, applied.Raw)
}

func TestSampleSizeOneDegeneratesToMidpoint(t *testing.T) {
	matrix := normalMatrix(rand.New(rand.NewSource(11)), 50)

	_, res, err := Fit(matrix, testNames(), 0.1, 10, 1, 42)
	require.NoError(t, err)

	for i, s := range res.Raw {
		require.False(t, math.IsNaN(s), "raw score %d is NaN", i)
	}
	for _, r := range RiskScores(res.Raw, 50) {
		assert.Equal(t, 50, r)
	}
}

func TestRiskScoresNaNSafe(t *testing.T) {
	nan := math.NaN()
	assert.Equal(t, []int{50}, RiskScores([]float64{nan}, 50))
	assert.Equal(t, []int{40, 40, 40}, RiskScores([]float64{-0.3, nan, -0.6}, 40))
}

func TestRiskScoresMonotonic(t *testing.T) {
	raw := []float64{-0.9, -0.7, -0.5, -0.3, -0.1}
	risks := RiskScores(raw, 50)

	// More negative raw score means higher risk.
	for i := 1; i < len(risks); i++ {
		assert.GreaterOrEqual(t, risks[i-1], risks[i])
	}
	assert.Equal(t, 100, risks[0])
	assert.Equal(t, 0, risks[len(risks)-1])
}

// buildScenario runs the full feature+fit path over real events.
func buildScenario(t *testing.T, events []event.AccessEvent, contamination float64) (*Result, []int) {
	t.Helper()

	builder := features.NewBuilder(config.DefaultConfig().Features)
	matrix := features.Matrix(builder.Build(events))

	_, res, err := Fit(matrix, features.FeatureNames(), contamination, 100, 0, 42)
	require.NoError(t, err)

	return res, RiskScores(res.Raw, 50)
}

func TestOffHoursExportLandsInTopQuartile(t *testing.T) {
	rng := rand.New(rand.NewSource(6))

	var events []event.AccessEvent
	for i := 0; i < 400; i++ {
		events = append(events, event.AccessEvent{
			EventID:       uid("n", i),
			Timestamp:     dayAt(9 + rng.Intn(9)),
			UserID:        uid("employee", 100+rng.Intn(200)),
			FileID:        uid("f", i),
			FileType:      "PDF",
			Action:        "view",
			FileSizeBytes: int64(1+rng.Intn(9)) << 20,
		})
	}

	suspicious := event.AccessEvent{
		EventID:       "suspect",
		Timestamp:     dayAt(3),
		UserID:        "employee999",
		FileID:        "dump",
		FileType:      "Database export",
		Action:        "export",
		FileSizeBytes: 500_000_000,
	}
	events = append(events, suspicious)

	_, risks := buildScenario(t, events, 0.02)

	sorted := append([]int(nil), risks...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	topQuartileCut := sorted[len(sorted)/4]

	assert.GreaterOrEqual(t, risks[len(risks)-1], topQuartileCut,
		"off-hours 500MB export scored %d, below top-quartile cut %d", risks[len(risks)-1], topQuartileCut)
}

func TestInjectedAnomaliesAllFlagged(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	var events []event.AccessEvent
	for i := 0; i < 1000; i++ {
		events = append(events, event.AccessEvent{
			EventID:       uid("n", i),
			Timestamp:     dayAt(9 + rng.Intn(9)),
			UserID:        uid("employee", 100+rng.Intn(300)),
			FileID:        uid("f", i),
			FileType:      "PDF",
			Action:        "view",
			FileSizeBytes: int64(1+rng.Intn(9)) << 20,
		})
	}
	for i := 0; i < 5; i++ {
		events = append(events, event.AccessEvent{
			EventID:       uid("inj", i),
			Timestamp:     dayAt(2),
			UserID:        "employee998",
			FileID:        uid("dump", i),
			FileType:      "Database export",
			Action:        "download",
			FileSizeBytes: (1 << 30) + int64(i)*(1<<27),
		})
	}

	res, _ := buildScenario(t, events, 0.02)

	for i := 1000; i < 1005; i++ {
		assert.True(t, res.IsAnomaly[i], "injected event %d not flagged", i-1000)
	}
}

func uid(prefix string, n int) string {
	return prefix + "-" + strconv.Itoa(n)
}

func dayAt(hour int) time.Time {
	// 2025-03-05 is a Wednesday.
	return time.Date(2025, 3, 5, hour, 0, 0, 0, time.UTC)
}
