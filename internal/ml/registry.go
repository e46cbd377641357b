package ml

import (
	"fmt"
	"sort"

	"hypo-churn/internal/common"
)

// Model type identifiers.
const (
	TypeRandomForest       = "random_forest"
	TypeLogisticRegression = "logistic_regression"
	TypeGradientBoosting   = "gradient_boosting"
)

// Options holds hyperparameters for all backends. Zero values select the
// backend's defaults; fields a backend does not use are ignored.
type Options struct {
	Seed           int64   `json:"seed,omitempty"`
	NumTrees       int     `json:"num_trees,omitempty"`
	MaxDepth       int     `json:"max_depth,omitempty"`
	MinSamplesLeaf int     `json:"min_samples_leaf,omitempty"`
	LearningRate   float64 `json:"learning_rate,omitempty"`
	MaxIterations  int     `json:"max_iterations,omitempty"`
	L2             float64 `json:"l2,omitempty"`
}

type factory func(Options) Model

var factories = map[string]factory{
	TypeRandomForest:       func(o Options) Model { return NewRandomForest(o) },
	TypeLogisticRegression: func(o Options) Model { return NewLogisticRegression(o) },
	TypeGradientBoosting:   func(o Options) Model { return NewGradientBoosting(o) },
}

// New creates an unfitted model of the given type.
func New(modelType string, opts Options) (Model, error) {
	f, ok := factories[modelType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelType, modelType)
	}
	return f(opts), nil
}

// DefaultName is the artifact name the training pipeline publishes a model
// type under. The API server loads common.DefaultModelName by default.
func DefaultName(modelType string) string {
	return common.ModelNamePrefix + modelType
}

// Types lists the registered model type identifiers in sorted order.
func Types() []string {
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
