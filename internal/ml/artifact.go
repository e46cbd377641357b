package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// ErrInvalidArtifact is returned when an artifact file cannot be decoded into a usable model.
var ErrInvalidArtifact = errors.New("invalid model artifact")

// ModelMetrics contains held-out performance of a trained model.
type ModelMetrics struct {
	Accuracy        float64  `json:"accuracy"`
	Precision       float64  `json:"precision"`
	Recall          float64  `json:"recall"`
	F1Score         float64  `json:"f1_score"`
	ROCAUC          *float64 `json:"roc_auc,omitempty"`
	TrainingSamples int      `json:"training_samples"`
	TestSamples     int      `json:"test_samples"`
}

// Artifact is a trained model with the metadata needed to serve it.
type Artifact struct {
	Name         string
	Version      string
	CreatedAt    time.Time
	FeatureNames []string
	Metrics      ModelMetrics
	Model        Model
}

type artifactEnvelope struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	ModelType    string          `json:"model_type"`
	CreatedAt    time.Time       `json:"created_at"`
	FeatureNames []string        `json:"feature_names"`
	Metrics      ModelMetrics    `json:"metrics"`
	Model        json.RawMessage `json:"model"`
}

// ModelType returns the type of the wrapped model.
func (a *Artifact) ModelType() string {
	if a.Model == nil {
		return ""
	}
	return a.Model.Type()
}

// SaveArtifact writes the artifact as JSON, gzip-compressed when path ends in
// ".gz". The file is replaced atomically.
func SaveArtifact(path string, a *Artifact) error {
	if a.Model == nil {
		return fmt.Errorf("artifact %s has no model", a.Name)
	}
	if n := a.Model.NumFeatures(); n != len(a.FeatureNames) {
		return fmt.Errorf("artifact %s: model expects %d features but %d names given", a.Name, n, len(a.FeatureNames))
	}

	model, err := json.Marshal(a.Model)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	payload, err := json.Marshal(artifactEnvelope{
		Name:         a.Name,
		Version:      a.Version,
		ModelType:    a.Model.Type(),
		CreatedAt:    a.CreatedAt,
		FeatureNames: a.FeatureNames,
		Metrics:      a.Metrics,
		Model:        model,
	})
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	if strings.HasSuffix(path, ".gz") {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return fmt.Errorf("compress artifact: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compress artifact: %w", err)
		}
		payload = buf.Bytes()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact written by SaveArtifact.
func LoadArtifact(path string) (*Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
		defer zr.Close()
		r = zr
	}

	var env artifactEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	model, err := New(env.ModelType, Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if err := model.UnmarshalJSON(env.Model); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if model.NumFeatures() != len(env.FeatureNames) {
		return nil, fmt.Errorf("%w: model expects %d features but artifact names %d",
			ErrInvalidArtifact, model.NumFeatures(), len(env.FeatureNames))
	}

	return &Artifact{
		Name:         env.Name,
		Version:      env.Version,
		CreatedAt:    env.CreatedAt,
		FeatureNames: env.FeatureNames,
		Metrics:      env.Metrics,
		Model:        model,
	}, nil
}

// LoadFirst loads the first artifact in paths that can be loaded and
// returns it with its path. Paths that fail are logged and skipped.
func LoadFirst(paths ...string) (*Artifact, string, error) {
	var lastErr error
	tried := make(map[string]bool, len(paths))
	for _, path := range paths {
		if path == "" || tried[path] {
			continue
		}
		tried[path] = true

		a, err := LoadArtifact(path)
		if err == nil {
			return a, path, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("path", path).Msg("Model artifact not loaded, trying next candidate")
	}
	if lastErr == nil {
		lastErr = errors.New("no model artifact path given")
	}
	return nil, "", fmt.Errorf("load model artifact: %w", lastErr)
}
