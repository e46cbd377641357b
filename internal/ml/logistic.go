package ml

import (
	"encoding/json"
	"fmt"
	"math"
)

// LogisticRegression is an L2-regularised logistic model fitted by batch
// gradient descent on standardised inputs.
type LogisticRegression struct {
	opts    Options
	weights []float64
	bias    float64
	means   []float64
	scales  []float64
}

type logisticState struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Means   []float64 `json:"means"`
	Scales  []float64 `json:"scales"`
	Options Options   `json:"options"`
}

const logisticTolerance = 1e-6

// NewLogisticRegression returns an unfitted model. Zero options select the
// default learning rate, iteration cap and L2 penalty.
func NewLogisticRegression(opts Options) *LogisticRegression {
	opts.LearningRate = orFloat(opts.LearningRate, 0.1)
	opts.MaxIterations = orInt(opts.MaxIterations, 1000)
	opts.L2 = orFloat(opts.L2, 0.01)
	return &LogisticRegression{opts: opts}
}

// Type returns the model type identifier.
func (lr *LogisticRegression) Type() string { return TypeLogisticRegression }

// NumFeatures is the input width the model was trained on.
func (lr *LogisticRegression) NumFeatures() int { return len(lr.weights) }

// Train fits the weights by batch gradient descent on standardised inputs.
func (lr *LogisticRegression) Train(features [][]float64, labels []int) error {
	if err := validateTraining(features, labels); err != nil {
		return err
	}

	n, width := len(features), len(features[0])
	means, scales := standardisation(features)

	x := make([][]float64, n)
	for i, row := range features {
		x[i] = standardise(row, means, scales)
	}

	weights := make([]float64, width)
	bias := 0.0
	grad := make([]float64, width)

	for iter := 0; iter < lr.opts.MaxIterations; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0

		for i, row := range x {
			residual := sigmoid(dot(weights, row)+bias) - float64(labels[i])
			for j, v := range row {
				grad[j] += residual * v
			}
			gradBias += residual
		}

		maxStep := math.Abs(gradBias / float64(n))
		for j := range weights {
			g := grad[j]/float64(n) + lr.opts.L2*weights[j]
			weights[j] -= lr.opts.LearningRate * g
			maxStep = math.Max(maxStep, math.Abs(g))
		}
		bias -= lr.opts.LearningRate * gradBias / float64(n)

		if maxStep < logisticTolerance {
			break
		}
	}

	lr.weights = weights
	lr.bias = bias
	lr.means = means
	lr.scales = scales
	return nil
}

// PredictProba returns the sigmoid of the linear score.
func (lr *LogisticRegression) PredictProba(features [][]float64) ([]float64, error) {
	if err := validatePrediction(features, len(lr.weights)); err != nil {
		return nil, err
	}

	proba := make([]float64, len(features))
	for i, row := range features {
		proba[i] = sigmoid(dot(lr.weights, standardise(row, lr.means, lr.scales)) + lr.bias)
	}
	return proba, nil
}

// Predict labels rows churned when PredictProba is at least DecisionThreshold.
func (lr *LogisticRegression) Predict(features [][]float64) ([]int, error) {
	return predictWith(lr, features)
}

// Coefficients returns the weights on the standardised features.
func (lr *LogisticRegression) Coefficients() []float64 {
	return append([]float64(nil), lr.weights...)
}

// MarshalJSON encodes weights, bias and standardisation parameters.
func (lr *LogisticRegression) MarshalJSON() ([]byte, error) {
	if len(lr.weights) == 0 {
		return nil, ErrNotFitted
	}
	return json.Marshal(logisticState{Weights: lr.weights, Bias: lr.bias, Means: lr.means, Scales: lr.scales, Options: lr.opts})
}

// UnmarshalJSON restores a model written by MarshalJSON.
func (lr *LogisticRegression) UnmarshalJSON(data []byte) error {
	var state logisticState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	width := len(state.Weights)
	if width == 0 || len(state.Means) != width || len(state.Scales) != width {
		return fmt.Errorf("logistic regression state has inconsistent dimensions")
	}
	lr.weights = state.Weights
	lr.bias = state.Bias
	lr.means = state.Means
	lr.scales = state.Scales
	lr.opts = state.Options
	return nil
}

func standardisation(features [][]float64) (means, scales []float64) {
	n, width := float64(len(features)), len(features[0])
	means = make([]float64, width)
	scales = make([]float64, width)

	for _, row := range features {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, row := range features {
		for j, v := range row {
			d := v - means[j]
			scales[j] += d * d
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j] / n)
		if scales[j] == 0 {
			scales[j] = 1
		}
	}
	return means, scales
}

func standardise(row, means, scales []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - means[j]) / scales[j]
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
