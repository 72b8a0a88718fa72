// Package config handles configuration loading and validation for riskscope.
package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
// Invalid option values are fatal before any pipeline work starts.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateModel(&c.Model)...)
	errs = append(errs, validateFeatures(&c.Features)...)
	errs = append(errs, validateGenerator(&c.Generator)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateModel(m *ModelConfig) ValidationErrors {
	var errs ValidationErrors

	if m.ContaminationRate <= 0 || m.ContaminationRate >= 0.5 {
		errs = append(errs, ValidationError{
			Field:   "model.contamination_rate",
			Message: fmt.Sprintf("must be in (0, 0.5), got %g", m.ContaminationRate),
		})
	}
	if m.NEstimators <= 0 {
		errs = append(errs, ValidationError{
			Field:   "model.n_estimators",
			Message: fmt.Sprintf("must be positive, got %d", m.NEstimators),
		})
	}
	// 0 means auto. A subsample of one point cannot isolate anything.
	if m.SampleSize < 0 || m.SampleSize == 1 {
		errs = append(errs, ValidationError{
			Field:   "model.sample_size",
			Message: fmt.Sprintf("must be 0 (auto) or at least 2, got %d", m.SampleSize),
		})
	}
	if m.RiskThreshold < 0 || m.RiskThreshold > 100 {
		errs = append(errs, ValidationError{
			Field:   "model.risk_threshold",
			Message: fmt.Sprintf("must be in [0, 100], got %d", m.RiskThreshold),
		})
	}
	if m.RiskMidpoint < 0 || m.RiskMidpoint > 100 {
		errs = append(errs, ValidationError{
			Field:   "model.risk_midpoint",
			Message: fmt.Sprintf("must be in [0, 100], got %d", m.RiskMidpoint),
		})
	}

	return errs
}

func validateFeatures(f *FeatureConfig) ValidationErrors {
	var errs ValidationErrors

	if f.WorkStartHour < 0 || f.WorkStartHour > 23 {
		errs = append(errs, ValidationError{
			Field:   "features.work_start_hour",
			Message: fmt.Sprintf("must be in [0, 23], got %d", f.WorkStartHour),
		})
	}
	if f.WorkEndHour < 1 || f.WorkEndHour > 24 {
		errs = append(errs, ValidationError{
			Field:   "features.work_end_hour",
			Message: fmt.Sprintf("must be in [1, 24], got %d", f.WorkEndHour),
		})
	}
	if f.WorkStartHour >= f.WorkEndHour {
		errs = append(errs, ValidationError{
			Field:   "features.work_end_hour",
			Message: fmt.Sprintf("window [%d, %d) is empty", f.WorkStartHour, f.WorkEndHour),
		})
	}
	if len(f.RecognizedFileTypes) == 0 {
		errs = append(errs, ValidationError{
			Field:   "features.recognized_file_types",
			Message: "at least one file type required",
		})
	}
	if len(f.RecognizedActions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "features.recognized_actions",
			Message: "at least one action required",
		})
	}

	return errs
}

func validateGenerator(g *GeneratorConfig) ValidationErrors {
	var errs ValidationErrors

	if g.NormalEvents < 0 {
		errs = append(errs, ValidationError{
			Field:   "generator.normal_events",
			Message: fmt.Sprintf("must be non-negative, got %d", g.NormalEvents),
		})
	}
	if g.SuspiciousEvents < 0 {
		errs = append(errs, ValidationError{
			Field:   "generator.suspicious_events",
			Message: fmt.Sprintf("must be non-negative, got %d", g.SuspiciousEvents),
		})
	}
	if g.NormalEvents+g.SuspiciousEvents == 0 {
		errs = append(errs, ValidationError{
			Field:   "generator.normal_events",
			Message: "dataset would be empty",
		})
	}
	if g.Days <= 0 {
		errs = append(errs, ValidationError{
			Field:   "generator.days",
			Message: fmt.Sprintf("must be positive, got %d", g.Days),
		})
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	if s.DataPath == "" {
		errs = append(errs, ValidationError{Field: "storage.data_path", Message: "required"})
	}
	if s.ModelPath == "" {
		errs = append(errs, ValidationError{Field: "storage.model_path", Message: "required"})
	}
	if s.ExportPath == "" {
		errs = append(errs, ValidationError{Field: "storage.export_path", Message: "required"})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", l.Level),
		})
	}
	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q", l.Format),
		})
	}

	return errs
}
