// Package pipeline wires the batch stages end to end: load or generate
// events, build features, fit or load the model, score, and persist. All
// state is carried explicitly; there are no process-wide singletons.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"riskscope/internal/config"
	"riskscope/internal/event"
	"riskscope/internal/export"
	"riskscope/internal/features"
	"riskscope/internal/generator"
	"riskscope/internal/modelstore"
	"riskscope/internal/scorer"
	"riskscope/internal/store"
)

// Pipeline runs the synchronous batch flow for one configuration.
type Pipeline struct {
	cfg *config.Config
	log *slog.Logger
}

// Result is the output of one scoring run.
type Result struct {
	Scored    []event.ScoredEvent
	Model     *scorer.Model
	Retrained bool
	Dropped   int
}

// New creates a pipeline for the validated configuration.
func New(cfg *config.Config, log *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log}
}

// LoadOrGenerate returns the dataset at the configured data path, generating
// and persisting a fresh one when the file does not exist.
func (p *Pipeline) LoadOrGenerate() ([]event.AccessEvent, error) {
	if _, err := os.Stat(p.cfg.Storage.DataPath); err == nil {
		p.log.Info("loading existing dataset", "path", p.cfg.Storage.DataPath)
		events, dropped, err := event.ReadCSV(p.cfg.Storage.DataPath, p.cfg.Features.DropInvalid)
		if err != nil {
			return nil, err
		}
		if dropped > 0 {
			p.log.Warn("dropped invalid rows", "count", dropped)
		}
		return events, nil
	}

	p.log.Info("no dataset found, generating",
		"normal", p.cfg.Generator.NormalEvents,
		"suspicious", p.cfg.Generator.SuspiciousEvents,
		"days", p.cfg.Generator.Days,
		"seed", p.cfg.Model.Seed)

	events, _ := p.Generate(time.Now().AddDate(0, 0, -p.cfg.Generator.Days))
	if err := event.WriteCSV(p.cfg.Storage.DataPath, events); err != nil {
		return nil, err
	}
	return events, nil
}

// Generate produces a fresh dataset starting at base. The returned set marks
// the injected anomalies by event ID, for evaluation only.
func (p *Pipeline) Generate(base time.Time) ([]event.AccessEvent, map[string]bool) {
	gen := generator.New(p.cfg.Generator, p.cfg.Features, p.cfg.Model.Seed)
	return gen.Dataset(base)
}

// Run validates the batch, builds features, fits or loads the model, and
// returns the scored table. The fitted model is persisted after a fresh fit.
func (p *Pipeline) Run(events []event.AccessEvent) (*Result, error) {
	events, dropped, err := event.ValidateAll(events, p.cfg.Features.DropInvalid)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		p.log.Warn("dropped invalid events", "count", dropped)
	}
	if len(events) == 0 {
		return nil, errors.New("pipeline: no valid events to score")
	}

	builder := features.NewBuilder(p.cfg.Features)
	matrix := features.Matrix(builder.Build(events))
	names := features.FeatureNames()

	model, result, retrained, err := p.fitOrLoad(matrix, names)
	if err != nil {
		return nil, err
	}

	risks := scorer.RiskScores(result.Raw, p.cfg.Model.RiskMidpoint)

	scored := make([]event.ScoredEvent, len(events))
	for i, e := range events {
		scored[i] = event.ScoredEvent{
			AccessEvent: e,
			IsAnomaly:   result.IsAnomaly[i],
			RawScore:    result.Raw[i],
			RiskScore:   risks[i],
		}
	}

	return &Result{Scored: scored, Model: model, Retrained: retrained, Dropped: dropped}, nil
}

// fitOrLoad applies the persisted model when one exists and its feature
// schema matches; otherwise it fits a fresh model and saves it. A missing
// artifact is never fatal. A schema mismatch is fatal unless the retrain
// fallback is configured.
func (p *Pipeline) fitOrLoad(matrix [][]float64, names []string) (*scorer.Model, *scorer.Result, bool, error) {
	model, artifact, err := modelstore.Load(p.cfg.Storage.ModelPath)
	switch {
	case err == nil:
		if serr := model.CheckSchema(names); serr != nil {
			if !p.cfg.Model.RetrainOnMismatch {
				return nil, nil, false, serr
			}
			p.log.Warn("model feature schema mismatch, retraining", "error", serr)
			return p.fit(matrix, names)
		}

		p.log.Info("applying persisted model",
			"trained_at", artifact.CreatedAt,
			"contamination", artifact.Contamination)
		result, aerr := scorer.Apply(model, matrix, names)
		if aerr != nil {
			return nil, nil, false, aerr
		}
		return model, result, false, nil

	case errors.Is(err, modelstore.ErrNotFound):
		p.log.Info("no persisted model, fitting from scratch")
		return p.fit(matrix, names)

	default:
		return nil, nil, false, err
	}
}

func (p *Pipeline) fit(matrix [][]float64, names []string) (*scorer.Model, *scorer.Result, bool, error) {
	m := p.cfg.Model
	model, result, err := scorer.Fit(matrix, names, m.ContaminationRate, m.NEstimators, m.SampleSize, m.Seed)
	if err != nil {
		return nil, nil, false, err
	}

	if err := modelstore.Save(p.cfg.Storage.ModelPath, model); err != nil {
		return nil, nil, false, fmt.Errorf("persist model: %w", err)
	}
	p.log.Info("model fitted and saved", "path", p.cfg.Storage.ModelPath, "trees", m.NEstimators)

	return model, result, true, nil
}

// Persist writes the scored table to the event store (when configured) and
// the export CSV.
func (p *Pipeline) Persist(events []event.AccessEvent, scored []event.ScoredEvent) error {
	if p.cfg.Storage.StorePath != "" {
		st, err := store.Open(p.cfg.Storage.StorePath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ReplaceEvents(events); err != nil {
			return err
		}
		if err := st.SaveScores(scored); err != nil {
			return err
		}
	}

	return export.WriteCSV(p.cfg.Storage.ExportPath, scored)
}

// Summarize logs the run outcome: batch size, anomaly count, high-risk count.
func (p *Pipeline) Summarize(res *Result) {
	anomalies := 0
	highRisk := 0
	for _, se := range res.Scored {
		if se.IsAnomaly {
			anomalies++
		}
		if se.HighRisk(p.cfg.Model.RiskThreshold) {
			highRisk++
		}
	}

	p.log.Info("scoring complete",
		"events", len(res.Scored),
		"anomalies", anomalies,
		"high_risk", highRisk,
		"threshold", p.cfg.Model.RiskThreshold,
		"retrained", res.Retrained)
}
