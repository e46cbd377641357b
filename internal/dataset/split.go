package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// Partition is a train/test split of a design matrix and its labels.
type Partition struct {
	Train       *Matrix
	Test        *Matrix
	TrainLabels []int
	TestLabels  []int
}

// TrainTestSplit shuffles rows with a fixed seed and holds out testFraction of
// each class for testing, so both parts keep the class balance.
func TrainTestSplit(m *Matrix, labels []int, testFraction float64, seed int64) (*Partition, error) {
	if len(labels) != m.Len() {
		return nil, fmt.Errorf("labels length %d does not match %d rows", len(labels), m.Len())
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, fmt.Errorf("test fraction must be in (0, 1), got %f", testFraction)
	}

	rng := rand.New(rand.NewSource(seed))
	byClass := map[int][]int{}
	for i, y := range labels {
		if y != 0 && y != 1 {
			return nil, fmt.Errorf("%w: %d at row %d", ErrInvalidLabel, y, i)
		}
		byClass[y] = append(byClass[y], i)
	}

	var trainIdx, testIdx []int
	for _, class := range []int{0, 1} {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(float64(len(idx)) * testFraction))
		testIdx = append(testIdx, idx[:nTest]...)
		trainIdx = append(trainIdx, idx[nTest:]...)
	}

	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })

	return &Partition{
		Train:       m.Subset(trainIdx),
		Test:        m.Subset(testIdx),
		TrainLabels: pick(labels, trainIdx),
		TestLabels:  pick(labels, testIdx),
	}, nil
}

func pick(values []int, indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = values[idx]
	}
	return out
}
