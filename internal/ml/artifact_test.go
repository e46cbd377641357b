package ml

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedArtifact(t *testing.T, modelType string) *Artifact {
	t.Helper()
	x, y := churnData(200, 11)
	model, err := New(modelType, smallOptions())
	require.NoError(t, err)
	require.NoError(t, model.Train(x, y))

	auc := 0.91
	return &Artifact{
		Name:         "best_model_" + modelType,
		Version:      "test",
		CreatedAt:    time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		FeatureNames: []string{"Age", "online_banking_active", "noise"},
		Metrics:      ModelMetrics{Accuracy: 0.9, ROCAUC: &auc, TrainingSamples: 200},
		Model:        model,
	}
}

func TestArtifact_RoundTrip(t *testing.T) {
	probe := [][]float64{{70, 0, 0.1}, {30, 1, -0.2}, {50, 0, 0}}

	for _, modelType := range Types() {
		for _, ext := range []string{".json", ".json.gz"} {
			t.Run(modelType+ext, func(t *testing.T) {
				original := trainedArtifact(t, modelType)
				path := filepath.Join(t.TempDir(), "model"+ext)
				require.NoError(t, SaveArtifact(path, original))

				loaded, err := LoadArtifact(path)
				require.NoError(t, err)

				assert.Equal(t, original.Name, loaded.Name)
				assert.Equal(t, modelType, loaded.ModelType())
				assert.Equal(t, original.FeatureNames, loaded.FeatureNames)
				assert.True(t, original.CreatedAt.Equal(loaded.CreatedAt))
				require.NotNil(t, loaded.Metrics.ROCAUC)
				assert.Equal(t, 0.91, *loaded.Metrics.ROCAUC)

				want, err := original.Model.PredictProba(probe)
				require.NoError(t, err)
				got, err := loaded.Model.PredictProba(probe)
				require.NoError(t, err)
				assert.InDeltaSlice(t, want, got, 1e-12)
			})
		}
	}
}

func TestSaveArtifact_Errors(t *testing.T) {
	dir := t.TempDir()

	err := SaveArtifact(filepath.Join(dir, "a.json"), &Artifact{Name: "empty"})
	assert.Error(t, err)

	a := trainedArtifact(t, TypeLogisticRegression)
	a.FeatureNames = a.FeatureNames[:2]
	assert.Error(t, SaveArtifact(filepath.Join(dir, "b.json"), a))

	unfitted, _ := New(TypeRandomForest, Options{})
	assert.ErrorIs(t, SaveArtifact(filepath.Join(dir, "c.json"), &Artifact{Name: "c", Model: unfitted}), ErrNotFitted)
}

func TestLoadArtifact_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadArtifact(filepath.Join(dir, "missing.json.gz"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	tests := map[string]string{
		"garbage.json":      "not json",
		"garbage.json.gz":   "not gzip",
		"unknown.json":      `{"model_type":"xgboost","feature_names":["a"],"model":{}}`,
		"inconsistent.json": `{"model_type":"logistic_regression","feature_names":["a","b"],"model":{"weights":[1],"bias":0,"means":[0],"scales":[1]}}`,
		"bad_tree.json":     `{"model_type":"random_forest","feature_names":["a"],"model":{"trees":[{"nodes":[{"f":3,"l":1,"r":2}]}],"features":1}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := LoadArtifact(path)
			assert.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}
}

func TestLoadFirst(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "best_model_random_forest.json.gz")
	require.NoError(t, SaveArtifact(fallback, trainedArtifact(t, TypeRandomForest)))

	corrupt := filepath.Join(dir, "corrupt.json.gz")
	require.NoError(t, os.WriteFile(corrupt, []byte("not gzip"), 0o644))

	a, path, err := LoadFirst(filepath.Join(dir, "missing.json.gz"), corrupt, fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, path)
	assert.Equal(t, TypeRandomForest, a.ModelType())

	_, _, err = LoadFirst(filepath.Join(dir, "missing.json.gz"), corrupt)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, _, err = LoadFirst()
	assert.Error(t, err)
}
