package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// RandomForest averages bootstrap-trained decision trees. Each leaf stores the
// fraction of churned customers that reached it.
type RandomForest struct {
	opts     Options
	trees    []tree
	features int
}

type randomForestState struct {
	Trees    []tree  `json:"trees"`
	Features int     `json:"features"`
	Options  Options `json:"options"`
}

// NewRandomForest returns an unfitted forest. Zero options select 100 trees
// of depth 10 and seed 42.
func NewRandomForest(opts Options) *RandomForest {
	opts.NumTrees = orInt(opts.NumTrees, 100)
	opts.MaxDepth = orInt(opts.MaxDepth, 10)
	opts.MinSamplesLeaf = orInt(opts.MinSamplesLeaf, 1)
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	return &RandomForest{opts: opts}
}

// Type returns the model type identifier.
func (rf *RandomForest) Type() string { return TypeRandomForest }

// NumFeatures is the input width the forest was trained on.
func (rf *RandomForest) NumFeatures() int { return rf.features }

// Train fits bootstrap trees on features and 0/1 labels.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if err := validateTraining(features, labels); err != nil {
		return err
	}

	width := len(features[0])
	g := make([]float64, len(labels))
	h := make([]float64, len(labels))
	for i, y := range labels {
		g[i] = float64(y)
		h[i] = 1
	}

	params := treeParams{
		maxDepth:       rf.opts.MaxDepth,
		minSamplesLeaf: rf.opts.MinSamplesLeaf,
		maxFeatures:    int(math.Max(1, math.Round(math.Sqrt(float64(width))))),
	}

	rng := rand.New(rand.NewSource(rf.opts.Seed))
	trees := make([]tree, rf.opts.NumTrees)
	n := len(features)
	for t := range trees {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		trees[t] = buildTree(features, g, h, sample, params, rng)
	}

	rf.trees = trees
	rf.features = width
	return nil
}

// PredictProba averages the trees' leaf churn rates.
func (rf *RandomForest) PredictProba(features [][]float64) ([]float64, error) {
	if err := validatePrediction(features, rf.features); err != nil {
		return nil, err
	}

	proba := make([]float64, len(features))
	for i, row := range features {
		var sum float64
		for t := range rf.trees {
			sum += rf.trees[t].predict(row)
		}
		proba[i] = clamp01(sum / float64(len(rf.trees)))
	}
	return proba, nil
}

// Predict labels rows churned when PredictProba is at least DecisionThreshold.
func (rf *RandomForest) Predict(features [][]float64) ([]int, error) {
	return predictWith(rf, features)
}

// MarshalJSON encodes the fitted trees and options.
func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	if rf.features == 0 {
		return nil, ErrNotFitted
	}
	return json.Marshal(randomForestState{Trees: rf.trees, Features: rf.features, Options: rf.opts})
}

// UnmarshalJSON restores a forest written by MarshalJSON.
func (rf *RandomForest) UnmarshalJSON(data []byte) error {
	var state randomForestState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Trees) == 0 || state.Features <= 0 {
		return fmt.Errorf("random forest state has no trees")
	}
	for _, t := range state.Trees {
		if err := t.validate(state.Features); err != nil {
			return err
		}
	}
	rf.trees = state.Trees
	rf.features = state.Features
	rf.opts = state.Options
	return nil
}

func clamp01(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
