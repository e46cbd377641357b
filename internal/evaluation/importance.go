package evaluation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Predictor is the part of a model permutation importance needs.
type Predictor interface {
	Predict(features [][]float64) ([]int, error)
}

// FeatureImportance is the mean accuracy drop when one feature is shuffled.
type FeatureImportance struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
	StdDev     float64 `json:"std_dev"`
}

// PermutationImportance shuffles each feature column repeats times with a
// fixed seed and measures the resulting drop in accuracy. Results are sorted
// by importance, highest first.
func PermutationImportance(model Predictor, features [][]float64, labels []int, names []string, repeats int, seed int64) ([]FeatureImportance, error) {
	if len(features) != len(labels) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrLengthMismatch, len(features), len(labels))
	}
	if len(features) == 0 {
		return nil, ErrEmptyInput
	}
	if len(names) != len(features[0]) {
		return nil, fmt.Errorf("%w: %d names for %d features", ErrLengthMismatch, len(names), len(features[0]))
	}
	if repeats <= 0 {
		repeats = 5
	}

	baseline, err := accuracyOf(model, features, labels)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	permuted := make([][]float64, len(features))
	for i, row := range features {
		permuted[i] = append([]float64(nil), row...)
	}
	column := make([]float64, len(features))

	results := make([]FeatureImportance, len(names))
	for f, name := range names {
		drops := make([]float64, repeats)
		for r := 0; r < repeats; r++ {
			for i := range features {
				column[i] = features[i][f]
			}
			rng.Shuffle(len(column), func(i, j int) { column[i], column[j] = column[j], column[i] })
			for i := range permuted {
				permuted[i][f] = column[i]
			}

			score, err := accuracyOf(model, permuted, labels)
			if err != nil {
				return nil, err
			}
			drops[r] = baseline - score
		}
		for i := range permuted {
			permuted[i][f] = features[i][f]
		}

		mean, std := meanStd(drops)
		results[f] = FeatureImportance{Name: name, Importance: mean, StdDev: std}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Importance > results[j].Importance })
	return results, nil
}

func accuracyOf(model Predictor, features [][]float64, labels []int) (float64, error) {
	pred, err := model.Predict(features)
	if err != nil {
		return 0, err
	}
	cm, err := Confusion(labels, pred)
	if err != nil {
		return 0, err
	}
	return ratio(cm.TruePositive+cm.TrueNegative, len(labels)), nil
}

func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
