// Package generator produces synthetic file-access datasets with a
// configurable mixture of normal and injected anomalous patterns.
//
// All randomness flows from a single seeded source, so the same seed, config,
// and base time reproduce the same dataset bit-for-bit.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"riskscope/internal/config"
	"riskscope/internal/event"
)

const megabyte = 1 << 20

// Hour-of-day model for normal events.
const (
	typicalHourMean = 13.0
	typicalHourStd  = 2.5
)

// fileTypeWeights matches the demo's distribution for normal traffic.
var fileTypeWeights = map[string]int{
	"PDF":             35,
	"Excel":           20,
	"Database export": 5,
	"CSV":             15,
	"Doc":             10,
	"PPT":             8,
	"Image":           7,
}

// Generator creates synthetic access events.
type Generator struct {
	gen      config.GeneratorConfig
	features config.FeatureConfig
	rng      *rand.Rand
	faker    *gofakeit.Faker
	seed     int64
	seq      int
}

// New creates a Generator seeded for reproducible output.
func New(gen config.GeneratorConfig, features config.FeatureConfig, seed int64) *Generator {
	return &Generator{
		gen:      gen,
		features: features,
		rng:      rand.New(rand.NewSource(seed)),
		faker:    gofakeit.New(uint64(seed)),
		seed:     seed,
	}
}

// eventID returns a name-based UUID derived from the seed and a running
// sequence number, so IDs are stable across runs with the same seed.
func (g *Generator) eventID() string {
	g.seq++
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "riskscope-%d-%d", g.seed, g.seq)).String()
}

// Dataset generates the full demo mixture: normal working-hours traffic plus
// injected mass-download and generic suspicious patterns, deterministically
// shuffled. The returned set holds the event IDs of the injected anomalies;
// it exists for evaluation only and is never a model input.
func (g *Generator) Dataset(base time.Time) ([]event.AccessEvent, map[string]bool) {
	massN := g.gen.SuspiciousEvents * 2 / 3
	genericN := g.gen.SuspiciousEvents - massN

	events := g.Normal(g.gen.NormalEvents, g.gen.Days, base)
	injected := make(map[string]bool, g.gen.SuspiciousEvents)

	for _, e := range g.MassDownloads(massN, base.AddDate(0, 0, g.gen.Days-1)) {
		injected[e.EventID] = true
		events = append(events, e)
	}
	for _, e := range g.GenericSuspicious(genericN, base.AddDate(0, 0, g.gen.Days-1)) {
		injected[e.EventID] = true
		events = append(events, e)
	}

	g.rng.Shuffle(len(events), func(i, j int) {
		events[i], events[j] = events[j], events[i]
	})

	return events, injected
}

// Normal generates n working-hours events spread over the given number of
// days starting at base. Hour of day follows a clamped normal distribution
// around early afternoon.
func (g *Generator) Normal(n, days int, base time.Time) []event.AccessEvent {
	events := make([]event.AccessEvent, 0, n)
	day := base.Truncate(24 * time.Hour)

	for i := 0; i < n; i++ {
		fileType := g.weighted(fileTypeWeights)
		action := event.ActionView
		if g.rng.Intn(100) < 25 {
			action = event.ActionDownload
		}

		hour := int(clamp(
			g.rng.NormFloat64()*typicalHourStd+typicalHourMean,
			float64(g.features.WorkStartHour),
			float64(g.features.WorkEndHour-1),
		))
		ts := day.AddDate(0, 0, g.rng.Intn(days)).
			Add(time.Duration(hour)*time.Hour + time.Duration(g.rng.Intn(60))*time.Minute)

		events = append(events, event.AccessEvent{
			EventID:       g.eventID(),
			Timestamp:     ts,
			UserID:        g.normalUser(),
			FileID:        g.fileID(),
			FileType:      fileType,
			Action:        action,
			FileSizeBytes: g.normalSize(fileType, action),
		})
	}

	return events
}

// MassDownloads generates the after-hours bulk download pattern: a single
// user pulling large files between 02:00 and 05:00.
func (g *Generator) MassDownloads(n int, day time.Time) []event.AccessEvent {
	events := make([]event.AccessEvent, 0, n)
	user := fmt.Sprintf("employee%d", 900+g.rng.Intn(100))
	base := day.Truncate(24 * time.Hour).Add(2 * time.Hour)

	types := map[string]int{"PDF": 70, "Database export": 20, "Excel": 10}

	for i := 0; i < n; i++ {
		fileType := g.weighted(types)

		var sizeMB float64
		switch fileType {
		case "Database export":
			sizeMB = 50 + g.rng.Float64()*250
		case "PDF":
			sizeMB = 5 + g.rng.Float64()*45
		default:
			sizeMB = 10 + g.rng.Float64()*70
		}

		events = append(events, event.AccessEvent{
			EventID:       g.eventID(),
			Timestamp:     base.Add(time.Duration(g.rng.Intn(180)) * time.Minute),
			UserID:        user,
			FileID:        g.fileID(),
			FileType:      fileType,
			Action:        event.ActionDownload,
			FileSizeBytes: int64(sizeMB * megabyte),
		})
	}

	return events
}

// GenericSuspicious generates scattered 03:00 downloads and exports of
// mid-to-large files across several users.
func (g *Generator) GenericSuspicious(n int, day time.Time) []event.AccessEvent {
	events := make([]event.AccessEvent, 0, n)

	for i := 0; i < n; i++ {
		ts := day.Truncate(24*time.Hour).
			AddDate(0, 0, -g.rng.Intn(3)).
			Add(3*time.Hour + time.Duration(g.rng.Intn(60))*time.Minute)

		action := event.ActionDownload
		if g.rng.Intn(100) < 30 {
			action = event.ActionExport
		}

		events = append(events, event.AccessEvent{
			EventID:       g.eventID(),
			Timestamp:     ts,
			UserID:        g.normalUser(),
			FileID:        g.fileID(),
			FileType:      g.features.RecognizedFileTypes[g.rng.Intn(len(g.features.RecognizedFileTypes))],
			Action:        action,
			FileSizeBytes: int64((10 + g.rng.Float64()*140) * megabyte),
		})
	}

	return events
}

// normalUser picks an employee ID from the regular population.
func (g *Generator) normalUser() string {
	return fmt.Sprintf("employee%d", 100+g.rng.Intn(800))
}

func (g *Generator) fileID() string {
	return fmt.Sprintf("%s-%04d", g.faker.Word(), g.rng.Intn(10000))
}

// normalSize draws a file size in bytes from a per-type exponential model.
// Downloads run about 1.3x larger than views.
func (g *Generator) normalSize(fileType, action string) int64 {
	var baseMB float64
	switch fileType {
	case "Database export":
		baseMB = g.rng.ExpFloat64()*15 + 10
	case "Excel", "PPT", "Doc":
		baseMB = g.rng.ExpFloat64()*3 + 1
	case "PDF", "CSV":
		baseMB = g.rng.ExpFloat64()*2 + 0.5
	default:
		baseMB = g.rng.ExpFloat64()*1.5 + 0.2
	}

	if action == event.ActionDownload {
		baseMB *= 1.3
	}
	baseMB = clamp(baseMB, 0.1, 120.0)

	return int64(baseMB * megabyte)
}

// weighted picks a key with probability proportional to its weight. Keys are
// visited in a stable order so draws stay reproducible.
func (g *Generator) weighted(weights map[string]int) string {
	keys := sortedKeys(weights)
	total := 0
	for _, k := range keys {
		total += weights[k]
	}

	pick := g.rng.Intn(total)
	for _, k := range keys {
		pick -= weights[k]
		if pick < 0 {
			return k
		}
	}
	return keys[len(keys)-1]
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
