// Package ml provides the churn classifiers behind the prediction service.
// It includes a common model interface, three built-in backends, versioned
// model artifacts and a registry-backed model manager.
//
// Every backend derives its hard labels from its own probabilities, so a
// label of 1 is returned exactly when the churn probability is at least 0.5.
package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownModelType is returned when a model type identifier is not registered.
	ErrUnknownModelType = errors.New("unknown model type")
	// ErrNotFitted is returned when predicting with a model that was neither
	// trained nor loaded from an artifact.
	ErrNotFitted = errors.New("model is not fitted")
	// ErrInvalidInput is returned for empty, ragged or mismatched training data.
	ErrInvalidInput = errors.New("invalid model input")
	// ErrFeatureMismatch is returned when prediction rows do not have the
	// number of features the model was trained on.
	ErrFeatureMismatch = errors.New("feature count mismatch")
)

// DecisionThreshold is the probability at and above which a customer is labelled churned.
const DecisionThreshold = 0.5

// Model is a binary churn classifier.
//
// Predict and PredictProba return one value per input row, in input order.
// Models are safe for concurrent prediction once trained; Train must not run
// concurrently with anything else on the same model.
type Model interface {
	// Type returns the registered model type identifier.
	Type() string

	// Train fits the model in place. Labels must be 0 or 1.
	Train(features [][]float64, labels []int) error

	// Predict returns hard labels (0 or 1).
	Predict(features [][]float64) ([]int, error)

	// PredictProba returns the churn probability for each row.
	PredictProba(features [][]float64) ([]float64, error)

	// NumFeatures returns the input width the model was fitted on, or 0.
	NumFeatures() int

	json.Marshaler
	json.Unmarshaler
}

// labelsFromProba applies DecisionThreshold.
func labelsFromProba(proba []float64) []int {
	labels := make([]int, len(proba))
	for i, p := range proba {
		if p >= DecisionThreshold {
			labels[i] = 1
		}
	}
	return labels
}

// predictWith is the shared Predict implementation of all backends.
func predictWith(m Model, features [][]float64) ([]int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(proba), nil
}

func validateTraining(features [][]float64, labels []int) error {
	if len(features) == 0 {
		return fmt.Errorf("%w: no training rows", ErrInvalidInput)
	}
	if len(features) != len(labels) {
		return fmt.Errorf("%w: features and labels differ in length", ErrInvalidInput)
	}
	width := len(features[0])
	if width == 0 {
		return fmt.Errorf("%w: rows have no features", ErrInvalidInput)
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("%w: ragged feature rows", ErrInvalidInput)
		}
		if labels[i] != 0 && labels[i] != 1 {
			return fmt.Errorf("%w: labels must be 0 or 1", ErrInvalidInput)
		}
	}
	return nil
}

func validatePrediction(features [][]float64, width int) error {
	if width == 0 {
		return ErrNotFitted
	}
	for _, row := range features {
		if len(row) != width {
			return fmt.Errorf("%w: row width differs from training data", ErrFeatureMismatch)
		}
	}
	return nil
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
