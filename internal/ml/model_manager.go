package ml

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"hypo-churn/internal/common"
	"hypo-churn/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ModelVersion represents a versioned model in the registry.
type ModelVersion struct {
	Name      string
	Version   string
	ModelType string
	Path      string
	CreatedAt time.Time
	Metrics   map[string]float64
	IsActive  bool
}

// ModelManager handles model versioning and rollback. Each version is kept
// under <modelsDir>/versions/<name>/; activating a version publishes a copy
// to <modelsDir>/<name>.json.gz, the path the API server loads.
type ModelManager struct {
	modelsDir string
	store     *storage.Store
	now       func() time.Time
}

// NewModelManager creates a model manager over an open registry.
func NewModelManager(modelsDir string, store *storage.Store) *ModelManager {
	return &ModelManager{modelsDir: modelsDir, store: store, now: time.Now}
}

// PublishedPath is where the active artifact of a model is served from.
func (mm *ModelManager) PublishedPath(name string) string {
	return filepath.Join(mm.modelsDir, name+common.ArtifactExtension)
}

// AddVersion stores a trained artifact as a new, inactive version and
// returns it. The artifact's Version and CreatedAt are assigned here.
func (mm *ModelManager) AddVersion(a *Artifact) (ModelVersion, error) {
	created := mm.now().UTC()
	a.CreatedAt = created
	a.Version = created.Format("20060102-150405") + "-" + uuid.NewString()[:8]

	path := filepath.Join(mm.modelsDir, "versions", a.Name, a.Version+common.ArtifactExtension)
	if err := SaveArtifact(path, a); err != nil {
		return ModelVersion{}, err
	}

	record := storage.ModelRecord{
		Name:         a.Name,
		Version:      a.Version,
		ModelType:    a.ModelType(),
		Path:         path,
		CreatedAt:    created,
		FeatureCount: len(a.FeatureNames),
		Metrics:      a.Metrics.asMap(),
	}
	if err := mm.store.PutModel(record); err != nil {
		return ModelVersion{}, fmt.Errorf("register model version: %w", err)
	}

	log.Info().
		Str("model", a.Name).
		Str("version", a.Version).
		Str("type", record.ModelType).
		Msg("Model version added")

	return fromRecord(record, false), nil
}

// ActivateVersion makes a version the active one and publishes its artifact.
func (mm *ModelManager) ActivateVersion(name, version string) error {
	record, err := mm.store.GetModel(name, version)
	if err != nil {
		return err
	}

	if err := copyFile(record.Path, mm.PublishedPath(name)); err != nil {
		return fmt.Errorf("publish %s %s: %w", name, version, err)
	}
	if err := mm.store.SetActive(name, version); err != nil {
		return err
	}

	log.Info().Str("model", name).Str("version", version).Msg("Model version activated")
	return nil
}

// Rollback activates the version created just before the active one.
func (mm *ModelManager) Rollback(name string) error {
	versions, err := mm.ListVersions(name)
	if err != nil {
		return err
	}
	if len(versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}
	if currentIdx+1 >= len(versions) {
		return fmt.Errorf("no previous version available")
	}

	return mm.ActivateVersion(name, versions[currentIdx+1].Version)
}

// GetCurrentVersion returns the active version of a model.
func (mm *ModelManager) GetCurrentVersion(name string) (ModelVersion, error) {
	record, err := mm.store.Active(name)
	if err != nil {
		return ModelVersion{}, err
	}
	return fromRecord(record, true), nil
}

// ListVersions returns all versions of a model, newest first.
func (mm *ModelManager) ListVersions(name string) ([]ModelVersion, error) {
	records, err := mm.store.ListModels(name)
	if err != nil {
		return nil, err
	}

	active := ""
	if current, err := mm.store.Active(name); err == nil {
		active = current.Version
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	versions := make([]ModelVersion, len(records))
	for i, r := range records {
		versions[i] = fromRecord(r, r.Version == active)
	}
	return versions, nil
}

func fromRecord(r storage.ModelRecord, active bool) ModelVersion {
	return ModelVersion{
		Name:      r.Name,
		Version:   r.Version,
		ModelType: r.ModelType,
		Path:      r.Path,
		CreatedAt: r.CreatedAt,
		Metrics:   r.Metrics,
		IsActive:  active,
	}
}

func (m ModelMetrics) asMap() map[string]float64 {
	out := map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1_score":  m.F1Score,
	}
	if m.ROCAUC != nil {
		out["roc_auc"] = *m.ROCAUC
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
