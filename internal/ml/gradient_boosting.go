package ml

import (
	"encoding/json"
	"fmt"
	"math"
)

// GradientBoosting fits an additive model of regression trees on the
// log-odds scale, one Newton step of the log-loss per tree.
type GradientBoosting struct {
	opts      Options
	baseScore float64
	trees     []tree
	features  int
}

type gradientBoostingState struct {
	BaseScore float64 `json:"base_score"`
	Trees     []tree  `json:"trees"`
	Features  int     `json:"features"`
	Options   Options `json:"options"`
}

// NewGradientBoosting returns an unfitted ensemble. Zero options select 100
// depth-3 trees with a 0.1 learning rate.
func NewGradientBoosting(opts Options) *GradientBoosting {
	opts.NumTrees = orInt(opts.NumTrees, 100)
	opts.MaxDepth = orInt(opts.MaxDepth, 3)
	opts.MinSamplesLeaf = orInt(opts.MinSamplesLeaf, 1)
	opts.LearningRate = orFloat(opts.LearningRate, 0.1)
	opts.L2 = orFloat(opts.L2, 1.0)
	return &GradientBoosting{opts: opts}
}

// Type returns the model type identifier.
func (gb *GradientBoosting) Type() string { return TypeGradientBoosting }

// NumFeatures is the input width the ensemble was trained on.
func (gb *GradientBoosting) NumFeatures() int { return gb.features }

// Train fits trees to the log-loss gradient, one Newton step per leaf.
func (gb *GradientBoosting) Train(features [][]float64, labels []int) error {
	if err := validateTraining(features, labels); err != nil {
		return err
	}

	n := len(features)
	positives := 0
	for _, y := range labels {
		positives += y
	}
	prior := math.Min(math.Max(float64(positives)/float64(n), 1e-6), 1-1e-6)
	base := math.Log(prior / (1 - prior))

	margin := make([]float64, n)
	for i := range margin {
		margin[i] = base
	}

	samples := make([]int, n)
	for i := range samples {
		samples[i] = i
	}

	params := treeParams{
		maxDepth:       gb.opts.MaxDepth,
		minSamplesLeaf: gb.opts.MinSamplesLeaf,
		lambda:         gb.opts.L2,
	}

	g := make([]float64, n)
	h := make([]float64, n)
	trees := make([]tree, 0, gb.opts.NumTrees)
	for round := 0; round < gb.opts.NumTrees; round++ {
		for i := range margin {
			p := sigmoid(margin[i])
			g[i] = float64(labels[i]) - p
			h[i] = math.Max(p*(1-p), 1e-12)
		}

		t := buildTree(features, g, h, samples, params, nil)
		for i := range t.Nodes {
			t.Nodes[i].Value *= gb.opts.LearningRate
		}
		for i, row := range features {
			margin[i] += t.predict(row)
		}
		trees = append(trees, t)
	}

	gb.baseScore = base
	gb.trees = trees
	gb.features = len(features[0])
	return nil
}

// PredictProba returns the sigmoid of the summed tree margins.
func (gb *GradientBoosting) PredictProba(features [][]float64) ([]float64, error) {
	if err := validatePrediction(features, gb.features); err != nil {
		return nil, err
	}

	proba := make([]float64, len(features))
	for i, row := range features {
		margin := gb.baseScore
		for t := range gb.trees {
			margin += gb.trees[t].predict(row)
		}
		proba[i] = sigmoid(margin)
	}
	return proba, nil
}

// Predict labels rows churned when PredictProba is at least DecisionThreshold.
func (gb *GradientBoosting) Predict(features [][]float64) ([]int, error) {
	return predictWith(gb, features)
}

// MarshalJSON encodes the base score, trees and options.
func (gb *GradientBoosting) MarshalJSON() ([]byte, error) {
	if gb.features == 0 {
		return nil, ErrNotFitted
	}
	return json.Marshal(gradientBoostingState{BaseScore: gb.baseScore, Trees: gb.trees, Features: gb.features, Options: gb.opts})
}

// UnmarshalJSON restores an ensemble written by MarshalJSON.
func (gb *GradientBoosting) UnmarshalJSON(data []byte) error {
	var state gradientBoostingState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.Features <= 0 {
		return fmt.Errorf("gradient boosting state has no features")
	}
	for _, t := range state.Trees {
		if err := t.validate(state.Features); err != nil {
			return err
		}
	}
	gb.baseScore = state.BaseScore
	gb.trees = state.Trees
	gb.features = state.Features
	gb.opts = state.Options
	return nil
}
