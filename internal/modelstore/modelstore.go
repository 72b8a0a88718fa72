// Package modelstore persists fitted models as a single versioned JSON
// artifact so scoring can be reused without retraining.
//
// The artifact carries the forest itself plus the ordered feature names and
// the contamination rate used at training time; callers validate schema
// compatibility against the current feature builder before applying a loaded
// model to new data.
package modelstore

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"riskscope/internal/iforest"
	"riskscope/internal/scorer"
)

// ArtifactVersion is the current model artifact schema version.
const ArtifactVersion = 1

// ErrNotFound is returned by Load when no artifact exists at the path. It is
// the one recoverable store error: callers fall back to fitting from scratch.
var ErrNotFound = errors.New("modelstore: model artifact not found")

//go:embed model.schema.json
var artifactSchema string

// Artifact is the on-disk model file layout.
type Artifact struct {
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	FeatureNames  []string        `json:"feature_names"`
	Contamination float64         `json:"contamination"`
	NEstimators   int             `json:"n_estimators"`
	Seed          int64           `json:"seed"`
	Offset        float64         `json:"offset"`
	Forest        *iforest.Forest `json:"forest"`
}

// Save writes the fitted model to path as a versioned artifact. The write
// goes through a temp file and rename so a crash never leaves a truncated
// artifact behind.
func Save(path string, m *scorer.Model) error {
	if m == nil || m.Forest == nil || !m.Forest.Fitted() {
		return errors.New("modelstore: no fitted model to save")
	}

	artifact := Artifact{
		Version:       ArtifactVersion,
		CreatedAt:     time.Now().UTC(),
		FeatureNames:  m.FeatureNames,
		Contamination: m.Contamination,
		NEstimators:   m.Forest.NumTrees,
		Seed:          m.Forest.Seed,
		Offset:        m.Offset,
		Forest:        m.Forest,
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename artifact: %w", err)
	}

	return nil
}

// Load reads a model artifact. Returns ErrNotFound when the file is absent;
// any other failure (corrupt JSON, schema violation, version mismatch) is an
// explicit error.
func Load(path string) (*scorer.Model, *Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("read artifact: %w", err)
	}

	if err := validateArtifact(data); err != nil {
		return nil, nil, fmt.Errorf("validate artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, nil, fmt.Errorf("decode artifact: %w", err)
	}

	if artifact.Version != ArtifactVersion {
		return nil, nil, fmt.Errorf("modelstore: unsupported artifact version %d (current: %d)", artifact.Version, ArtifactVersion)
	}
	if artifact.Forest == nil || !artifact.Forest.Fitted() {
		return nil, nil, errors.New("modelstore: artifact contains no fitted forest")
	}

	model := &scorer.Model{
		Forest:        artifact.Forest,
		FeatureNames:  artifact.FeatureNames,
		Contamination: artifact.Contamination,
		Offset:        artifact.Offset,
	}
	return model, &artifact, nil
}

// validateArtifact checks the raw JSON against the embedded artifact schema
// before decoding.
func validateArtifact(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("model.schema.json", bytes.NewReader([]byte(artifactSchema))); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("model.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal instance: %w", err)
	}

	return schema.Validate(instance)
}
