package ml

import (
	"math/rand"
	"testing"

	"hypo-churn/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// churnData builds a noisy, mostly separable problem: churn when the first
// feature (age-like) is high and the second (activity) is low.
func churnData(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		age := 20 + rng.Float64()*60
		active := float64(rng.Intn(2))
		noise := rng.NormFloat64()
		x[i] = []float64{age, active, noise}
		score := (age-50)/10 - 1.5*active
		if score+0.3*rng.NormFloat64() > 0 {
			y[i] = 1
		}
	}
	return x, y
}

func accuracy(pred, truth []int) float64 {
	correct := 0
	for i := range pred {
		if pred[i] == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(pred))
}

func smallOptions() Options {
	return Options{NumTrees: 20, MaxDepth: 4, Seed: 7}
}

func TestBackends_TrainAndPredict(t *testing.T) {
	x, y := churnData(400, 1)
	testX, testY := churnData(200, 2)

	for _, modelType := range Types() {
		t.Run(modelType, func(t *testing.T) {
			model, err := New(modelType, smallOptions())
			require.NoError(t, err)
			assert.Equal(t, modelType, model.Type())

			require.NoError(t, model.Train(x, y))
			assert.Equal(t, 3, model.NumFeatures())

			proba, err := model.PredictProba(testX)
			require.NoError(t, err)
			labels, err := model.Predict(testX)
			require.NoError(t, err)

			require.Len(t, proba, len(testX))
			require.Len(t, labels, len(testX))
			for i, p := range proba {
				assert.GreaterOrEqual(t, p, 0.0)
				assert.LessOrEqual(t, p, 1.0)
				want := 0
				if p >= 0.5 {
					want = 1
				}
				assert.Equal(t, want, labels[i], "label follows probability at row %d", i)
			}

			assert.Greater(t, accuracy(labels, testY), 0.8)
		})
	}
}

func TestBackends_PreserveInputOrder(t *testing.T) {
	x, y := churnData(300, 3)

	for _, modelType := range Types() {
		t.Run(modelType, func(t *testing.T) {
			model, err := New(modelType, smallOptions())
			require.NoError(t, err)
			require.NoError(t, model.Train(x, y))

			rows := [][]float64{{75, 0, 0}, {22, 1, 0}}
			batch, err := model.PredictProba(rows)
			require.NoError(t, err)

			for i, row := range rows {
				single, err := model.PredictProba([][]float64{row})
				require.NoError(t, err)
				assert.InDelta(t, single[0], batch[i], 1e-12)
			}
			assert.Greater(t, batch[0], batch[1], "older inactive customer is riskier")
		})
	}
}

func TestBackends_NotFitted(t *testing.T) {
	for _, modelType := range Types() {
		t.Run(modelType, func(t *testing.T) {
			model, err := New(modelType, Options{})
			require.NoError(t, err)

			_, err = model.Predict([][]float64{{1, 2, 3}})
			assert.ErrorIs(t, err, ErrNotFitted)
			_, err = model.PredictProba([][]float64{{1, 2, 3}})
			assert.ErrorIs(t, err, ErrNotFitted)
			assert.Equal(t, 0, model.NumFeatures())

			_, err = model.MarshalJSON()
			assert.ErrorIs(t, err, ErrNotFitted)
		})
	}
}

func TestBackends_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		x      [][]float64
		labels []int
	}{
		{"empty", nil, nil},
		{"length mismatch", [][]float64{{1}, {2}}, []int{1}},
		{"ragged", [][]float64{{1, 2}, {3}}, []int{0, 1}},
		{"non binary", [][]float64{{1}, {2}}, []int{0, 2}},
		{"no features", [][]float64{{}, {}}, []int{0, 1}},
	}

	for _, modelType := range Types() {
		for _, tt := range tests {
			t.Run(modelType+"/"+tt.name, func(t *testing.T) {
				model, err := New(modelType, smallOptions())
				require.NoError(t, err)
				assert.ErrorIs(t, model.Train(tt.x, tt.labels), ErrInvalidInput)
			})
		}
	}
}

func TestBackends_FeatureMismatch(t *testing.T) {
	x, y := churnData(100, 4)
	for _, modelType := range Types() {
		t.Run(modelType, func(t *testing.T) {
			model, err := New(modelType, smallOptions())
			require.NoError(t, err)
			require.NoError(t, model.Train(x, y))

			_, err = model.Predict([][]float64{{1, 2}})
			assert.ErrorIs(t, err, ErrFeatureMismatch)

			empty, err := model.Predict(nil)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestNew_UnknownModelType(t *testing.T) {
	_, err := New("xgboost", Options{})
	assert.ErrorIs(t, err, ErrUnknownModelType)
}

func TestTypes(t *testing.T) {
	assert.Equal(t, []string{TypeGradientBoosting, TypeLogisticRegression, TypeRandomForest}, Types())
}

func TestDefaultName(t *testing.T) {
	assert.Equal(t, TypeGradientBoosting, common.DefaultModelType)
	assert.Equal(t, common.DefaultModelName, DefaultName(common.DefaultModelType))
	assert.Equal(t, common.DefaultFallbackModelName, DefaultName(TypeRandomForest))
	assert.Contains(t, Types(), common.DefaultModelType)
}

func TestRandomForest_Deterministic(t *testing.T) {
	x, y := churnData(200, 5)

	a := NewRandomForest(smallOptions())
	b := NewRandomForest(smallOptions())
	require.NoError(t, a.Train(x, y))
	require.NoError(t, b.Train(x, y))

	pa, err := a.PredictProba(x)
	require.NoError(t, err)
	pb, err := b.PredictProba(x)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestGradientBoosting_SingleClass(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}}
	gb := NewGradientBoosting(Options{NumTrees: 5})
	require.NoError(t, gb.Train(x, []int{0, 0, 0}))

	proba, err := gb.PredictProba(x)
	require.NoError(t, err)
	for _, p := range proba {
		assert.Less(t, p, 0.01)
	}
}

func TestLogisticRegression_ConstantFeature(t *testing.T) {
	x := [][]float64{{1, 5}, {2, 5}, {8, 5}, {9, 5}}
	lr := NewLogisticRegression(Options{})
	require.NoError(t, lr.Train(x, []int{0, 0, 1, 1}))

	labels, err := lr.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1}, labels)
	assert.Len(t, lr.Coefficients(), 2)
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-12)
	assert.InDelta(t, 1.0, sigmoid(800), 1e-12)
	assert.InDelta(t, 0.0, sigmoid(-800), 1e-12)
}
