package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, "registry.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	invalidPath := filepath.Join(t.TempDir(), "missing", "nested")

	_, err := New(invalidPath)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestPutAndGetModel(t *testing.T) {
	store := newTestStore(t)

	record := ModelRecord{
		Name:         "best_model_random_forest",
		Version:      "20250101-120000",
		ModelType:    "random_forest",
		Path:         "models/versions/best_model_random_forest/20250101-120000.json.gz",
		CreatedAt:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		FeatureCount: 17,
		Metrics:      map[string]float64{"accuracy": 0.86},
	}
	if err := store.PutModel(record); err != nil {
		t.Fatalf("PutModel failed: %v", err)
	}

	got, err := store.GetModel(record.Name, record.Version)
	if err != nil {
		t.Fatalf("GetModel failed: %v", err)
	}
	if got.Path != record.Path || got.FeatureCount != 17 || got.Metrics["accuracy"] != 0.86 {
		t.Errorf("Unexpected record: %+v", got)
	}

	if _, err := store.GetModel(record.Name, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := store.PutModel(ModelRecord{Name: "x"}); err == nil {
		t.Error("Expected error for record without version")
	}
}

func TestListModels(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, v := range []string{"v1", "v2", "v3"} {
		if err := store.PutModel(ModelRecord{Name: "churn", Version: v, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("PutModel failed: %v", err)
		}
	}
	if err := store.PutModel(ModelRecord{Name: "churn_alt", Version: "v9", CreatedAt: base}); err != nil {
		t.Fatalf("PutModel failed: %v", err)
	}

	records, err := store.ListModels("churn")
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 versions, got %d", len(records))
	}
	if records[0].Version != "v3" || records[2].Version != "v1" {
		t.Errorf("Expected newest first, got %s..%s", records[0].Version, records[2].Version)
	}

	empty, err := store.ListModels("unknown")
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no versions, got %d", len(empty))
	}
}

func TestActiveVersion(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Active("churn"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound before activation, got %v", err)
	}
	if err := store.SetActive("churn", "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown version, got %v", err)
	}

	if err := store.PutModel(ModelRecord{Name: "churn", Version: "v1"}); err != nil {
		t.Fatalf("PutModel failed: %v", err)
	}
	if err := store.SetActive("churn", "v1"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	active, err := store.Active("churn")
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active.Version != "v1" {
		t.Errorf("Expected active version v1, got %s", active.Version)
	}
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.PutModel(ModelRecord{Name: "churn", Version: "v1"}); err != nil {
		t.Fatalf("PutModel failed: %v", err)
	}
	if err := store.SetActive("churn", "v1"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	store.Close()

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	if active, err := reopened.Active("churn"); err != nil || active.Version != "v1" {
		t.Errorf("Expected persisted active version v1, got %+v (%v)", active, err)
	}
}

func TestStoreRunAndGetRuns(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		run := TrainingRun{
			ID:        string(rune('a' + i)),
			Dataset:   "data/raw/banking_churn/churn.csv",
			ModelName: "churn",
			ModelType: "random_forest",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Duration:  time.Minute,
			Rows:      1000,
			Metrics:   map[string]float64{"f1_score": 0.6},
		}
		if err := store.StoreRun(run); err != nil {
			t.Fatalf("StoreRun failed: %v", err)
		}
	}

	runs, err := store.GetRuns(base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("GetRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs in range, got %d", len(runs))
	}
	if runs[0].ID != "b" || runs[2].ID != "d" {
		t.Errorf("Expected runs b..d oldest first, got %s..%s", runs[0].ID, runs[2].ID)
	}
	if runs[0].Metrics["f1_score"] != 0.6 {
		t.Errorf("Expected metrics to round-trip, got %v", runs[0].Metrics)
	}
}
