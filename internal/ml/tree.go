package ml

import (
	"fmt"
	"math/rand"
	"sort"
)

// treeNode is one node of a flattened binary tree. Children are indices
// into the node slice; leaves have Feature == -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *tree) predict(row []float64) float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Feature < 0 {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int // 0 means all
	lambda         float64
}

// treeBuilder grows a second-order regression tree: each sample carries a
// gradient g and hessian h, leaves predict G/(H+lambda) and splits maximise
// G_L²/(H_L+λ) + G_R²/(H_R+λ) - G²/(H+λ). With g = y, h = 1 and λ = 0 this is
// variance reduction on 0/1 labels, which ranks splits like gini impurity.
type treeBuilder struct {
	x      [][]float64
	g, h   []float64
	params treeParams
	rng    *rand.Rand
	nodes  []treeNode
	order  []int
}

func buildTree(x [][]float64, g, h []float64, samples []int, params treeParams, rng *rand.Rand) tree {
	b := &treeBuilder{x: x, g: g, h: h, params: params, rng: rng}
	b.build(samples, 0)
	return tree{Nodes: b.nodes}
}

func (b *treeBuilder) build(samples []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: -1})

	var gSum, hSum float64
	for _, s := range samples {
		gSum += b.g[s]
		hSum += b.h[s]
	}
	leafValue := gSum / (hSum + b.params.lambda)

	if depth >= b.params.maxDepth || len(samples) < 2*b.params.minSamplesLeaf {
		b.nodes[id].Value = leafValue
		return id
	}

	feature, threshold, ok := b.bestSplit(samples, gSum, hSum)
	if !ok {
		b.nodes[id].Value = leafValue
		return id
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, s := range samples {
		if b.x[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id] = treeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

func (b *treeBuilder) bestSplit(samples []int, gSum, hSum float64) (int, float64, bool) {
	width := len(b.x[samples[0]])
	candidates := b.featureCandidates(width)
	parentScore := gSum * gSum / (hSum + b.params.lambda)

	bestGain := 1e-12
	bestFeature := -1
	bestThreshold := 0.0

	if cap(b.order) < len(samples) {
		b.order = make([]int, len(samples))
	}
	order := b.order[:len(samples)]

	for _, f := range candidates {
		copy(order, samples)
		sort.Slice(order, func(i, j int) bool { return b.x[order[i]][f] < b.x[order[j]][f] })

		var gLeft, hLeft float64
		for i := 0; i < len(order)-1; i++ {
			gLeft += b.g[order[i]]
			hLeft += b.h[order[i]]

			nLeft := i + 1
			if nLeft < b.params.minSamplesLeaf || len(order)-nLeft < b.params.minSamplesLeaf {
				continue
			}
			v, next := b.x[order[i]][f], b.x[order[i+1]][f]
			if v == next {
				continue
			}

			gRight, hRight := gSum-gLeft, hSum-hLeft
			gain := gLeft*gLeft/(hLeft+b.params.lambda) + gRight*gRight/(hRight+b.params.lambda) - parentScore
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (v + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func (b *treeBuilder) featureCandidates(width int) []int {
	all := make([]int, width)
	for i := range all {
		all[i] = i
	}
	if b.params.maxFeatures <= 0 || b.params.maxFeatures >= width || b.rng == nil {
		return all
	}
	b.rng.Shuffle(width, func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:b.params.maxFeatures]
}

// validate checks a deserialised tree so prediction cannot index out of range or loop.
func (t *tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= width {
			return fmt.Errorf("node %d uses feature %d of %d", i, n.Feature, width)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}
