package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const runsBucket = "runs"

// TrainingRun records one execution of the training pipeline.
type TrainingRun struct {
	ID           string             `json:"id"`
	Dataset      string             `json:"dataset"`
	ModelName    string             `json:"model_name"`
	ModelType    string             `json:"model_type"`
	ModelVersion string             `json:"model_version,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	Duration     time.Duration      `json:"duration"`
	Rows         int                `json:"rows"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

func runKey(startedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", startedAt.UnixNano(), id))
}

// StoreRun stores a training run keyed by its start time.
func (s *Store) StoreRun(run TrainingRun) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal training run: %w", err)
		}
		return tx.Bucket([]byte(runsBucket)).Put(runKey(run.StartedAt, run.ID), data)
	})
}

// GetRuns returns training runs started within [start, end], oldest first.
func (s *Store) GetRuns(start, end time.Time) ([]TrainingRun, error) {
	var runs []TrainingRun

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d_\xff", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var run TrainingRun
			if err := json.Unmarshal(v, &run); err != nil {
				continue // Skip malformed records
			}
			runs = append(runs, run)
		}
		return nil
	})

	return runs, err
}
