// Package config handles configuration loading, validation, and management for riskscope.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete pipeline configuration. It is constructed once at
// startup, validated, and passed explicitly to each component.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Model configuration for the anomaly estimator.
	Model ModelConfig `toml:"model" json:"model" yaml:"model"`

	// Features configuration for the feature builder.
	Features FeatureConfig `toml:"features" json:"features" yaml:"features"`

	// Generator configuration for the synthetic log producer.
	Generator GeneratorConfig `toml:"generator" json:"generator" yaml:"generator"`

	// Storage configuration for datasets, the model artifact, and the event store.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// ModelConfig holds estimator settings.
type ModelConfig struct {
	// ContaminationRate is the expected proportion of anomalies, in (0, 0.5).
	ContaminationRate float64 `toml:"contamination_rate" json:"contamination_rate" yaml:"contamination_rate"`

	// NEstimators is the number of isolation trees.
	NEstimators int `toml:"n_estimators" json:"n_estimators" yaml:"n_estimators"`

	// SampleSize is the subsample size per tree. 0 means min(256, len(data)).
	SampleSize int `toml:"sample_size" json:"sample_size" yaml:"sample_size"`

	// Seed drives both the estimator and the generator for reproducible runs.
	Seed int64 `toml:"seed" json:"seed" yaml:"seed"`

	// RiskThreshold is the risk score above which an event is reported as
	// high-risk. A presentation concern, not a scorer input.
	RiskThreshold int `toml:"risk_threshold" json:"risk_threshold" yaml:"risk_threshold"`

	// RiskMidpoint is the risk score assigned to every event of a degenerate
	// batch where all raw scores are identical.
	RiskMidpoint int `toml:"risk_midpoint" json:"risk_midpoint" yaml:"risk_midpoint"`

	// RetrainOnMismatch falls back to fitting a fresh model when a loaded
	// artifact's feature schema disagrees with the feature builder.
	RetrainOnMismatch bool `toml:"retrain_on_mismatch" json:"retrain_on_mismatch" yaml:"retrain_on_mismatch"`
}

// FeatureConfig holds feature builder settings.
type FeatureConfig struct {
	// WorkStartHour and WorkEndHour define the working-hour window
	// [start, end) in 24h local time. Hours outside it are off-hours.
	WorkStartHour int `toml:"work_start_hour" json:"work_start_hour" yaml:"work_start_hour"`
	WorkEndHour   int `toml:"work_end_hour" json:"work_end_hour" yaml:"work_end_hour"`

	// RecognizedFileTypes is the enumerated file type set. Anything else is
	// mapped to the "other" bucket.
	RecognizedFileTypes []string `toml:"recognized_file_types" json:"recognized_file_types" yaml:"recognized_file_types"`

	// RecognizedActions is the enumerated action set.
	RecognizedActions []string `toml:"recognized_actions" json:"recognized_actions" yaml:"recognized_actions"`

	// DropInvalid drops malformed event rows instead of failing the batch.
	DropInvalid bool `toml:"drop_invalid" json:"drop_invalid" yaml:"drop_invalid"`
}

// GeneratorConfig holds synthetic dataset settings.
type GeneratorConfig struct {
	// NormalEvents is the number of working-hours events per dataset.
	NormalEvents int `toml:"normal_events" json:"normal_events" yaml:"normal_events"`

	// SuspiciousEvents is the number of injected anomalous events per dataset.
	SuspiciousEvents int `toml:"suspicious_events" json:"suspicious_events" yaml:"suspicious_events"`

	// Days is the span of the generated dataset.
	Days int `toml:"days" json:"days" yaml:"days"`
}

// StorageConfig holds persistence paths.
type StorageConfig struct {
	// DataPath is the dataset CSV file.
	DataPath string `toml:"data_path" json:"data_path" yaml:"data_path"`

	// ModelPath is the serialized model artifact.
	ModelPath string `toml:"model_path" json:"model_path" yaml:"model_path"`

	// StorePath is the SQLite event store. Empty disables the store.
	StorePath string `toml:"store_path" json:"store_path" yaml:"store_path"`

	// ExportPath is the default destination for scored-event exports.
	ExportPath string `toml:"export_path" json:"export_path" yaml:"export_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", or a file path.
	Output string `toml:"output" json:"output" yaml:"output"`
}

// DefaultConfig returns a configuration with the demo defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Model: ModelConfig{
			ContaminationRate: 0.02,
			NEstimators:       300,
			SampleSize:        0,
			Seed:              42,
			RiskThreshold:     70,
			RiskMidpoint:      50,
			RetrainOnMismatch: true,
		},
		Features: FeatureConfig{
			WorkStartHour:       8,
			WorkEndHour:         19,
			RecognizedFileTypes: []string{"PDF", "Excel", "Database export", "CSV", "Doc", "PPT", "Image"},
			RecognizedActions:   []string{"view", "download", "export"},
			DropInvalid:         false,
		},
		Generator: GeneratorConfig{
			NormalEvents:     2500,
			SuspiciousEvents: 180,
			Days:             10,
		},
		Storage: StorageConfig{
			DataPath:   filepath.Join(dir, "file_access_logs.csv"),
			ModelPath:  filepath.Join(dir, "isolation_forest.json"),
			StorePath:  filepath.Join(dir, "events.db"),
			ExportPath: filepath.Join(dir, "scored_events.csv"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DataDir returns the base riskscope directory, honoring the
// RISKSCOPE_DATA_DIR override.
func DataDir() string {
	if envDir := os.Getenv("RISKSCOPE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".riskscope"
	}
	return filepath.Join(home, ".riskscope")
}

// Load reads configuration from the specified path. If the file doesn't
// exist, returns default configuration. Supports TOML, JSON, and YAML based
// on file extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		// TOML is the primary format
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the parent directories for all configured paths.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.DataPath),
		filepath.Dir(c.Storage.ModelPath),
		filepath.Dir(c.Storage.ExportPath),
	}
	if c.Storage.StorePath != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.StorePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides. Variables are
// prefixed with RISKSCOPE_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RISKSCOPE_DATA_PATH"); v != "" {
		c.Storage.DataPath = v
	}
	if v := os.Getenv("RISKSCOPE_MODEL_PATH"); v != "" {
		c.Storage.ModelPath = v
	}
	if v := os.Getenv("RISKSCOPE_STORE_PATH"); v != "" {
		c.Storage.StorePath = v
	}
	if v := os.Getenv("RISKSCOPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RISKSCOPE_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Model.Seed = seed
		}
	}
	if v := os.Getenv("RISKSCOPE_CONTAMINATION"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.Model.ContaminationRate = rate
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Features.RecognizedFileTypes = append([]string{}, c.Features.RecognizedFileTypes...)
	clone.Features.RecognizedActions = append([]string{}, c.Features.RecognizedActions...)
	return &clone
}
