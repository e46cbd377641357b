// Package storage provides the persistent model registry for the churn service.
// It uses BoltDB to record every trained model version, which version of each
// model is active, and the history of training runs.
//
// Model artifacts themselves live on disk next to the registry; the registry
// only stores their metadata and paths.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"hypo-churn/internal/common"

	"go.etcd.io/bbolt"
)

const (
	modelsBucket = "models" // Bucket name for model version records
	activeBucket = "active" // Bucket name for the active version per model
)

// ErrNotFound is returned when a model or version is not in the registry.
var ErrNotFound = errors.New("not found")

// ModelRecord describes one stored version of a named model.
type ModelRecord struct {
	Name         string             `json:"name"`
	Version      string             `json:"version"`
	ModelType    string             `json:"model_type"`
	Path         string             `json:"path"`
	CreatedAt    time.Time          `json:"created_at"`
	FeatureCount int                `json:"feature_count"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Store provides persistent storage for the model registry using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the registry file inside dataPath.
func New(dataPath string) (*Store, error) {
	return Open(filepath.Join(dataPath, common.RegistryFileName))
}

// Open opens (or creates) a registry at an explicit file path and ensures
// its buckets exist.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{modelsBucket, activeBucket, runsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func modelKey(name, version string) []byte {
	return []byte(name + "/" + version)
}

// PutModel stores or replaces a model version record.
func (s *Store) PutModel(record ModelRecord) error {
	if record.Name == "" || record.Version == "" {
		return fmt.Errorf("model record needs a name and a version")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal model record: %w", err)
		}
		return tx.Bucket([]byte(modelsBucket)).Put(modelKey(record.Name, record.Version), data)
	})
}

// GetModel returns one model version.
func (s *Store) GetModel(name, version string) (ModelRecord, error) {
	var record ModelRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(modelsBucket)).Get(modelKey(name, version))
		if data == nil {
			return fmt.Errorf("model %s version %s: %w", name, version, ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	return record, err
}

// ListModels returns all versions of a model, newest first.
func (s *Store) ListModels(name string) ([]ModelRecord, error) {
	var records []ModelRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(modelsBucket)).Cursor()
		prefix := []byte(name + "/")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record ModelRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue // Skip malformed records
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// SetActive marks a stored version as the active one for its model.
func (s *Store) SetActive(name, version string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(modelsBucket)).Get(modelKey(name, version)) == nil {
			return fmt.Errorf("model %s version %s: %w", name, version, ErrNotFound)
		}
		return tx.Bucket([]byte(activeBucket)).Put([]byte(name), []byte(version))
	})
}

// Active returns the active version of a model.
func (s *Store) Active(name string) (ModelRecord, error) {
	var version string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(activeBucket)).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("no active version of %s: %w", name, ErrNotFound)
		}
		version = string(v)
		return nil
	})
	if err != nil {
		return ModelRecord{}, err
	}
	return s.GetModel(name, version)
}
