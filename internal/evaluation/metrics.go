// Package evaluation computes classification metrics for churn models and
// renders them as reports.
package evaluation

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrLengthMismatch is returned when label and score sequences differ in length.
	ErrLengthMismatch = errors.New("length mismatch")
	// ErrEmptyInput is returned when there is nothing to evaluate.
	ErrEmptyInput = errors.New("empty input")
)

// Metrics holds binary classification metrics. ROCAUC is nil when it is
// undefined: no probabilities were given or y_true holds a single class.
type Metrics struct {
	Accuracy  float64  `json:"accuracy"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1Score   float64  `json:"f1_score"`
	ROCAUC    *float64 `json:"roc_auc,omitempty"`
}

// ConfusionMatrix counts outcomes with churn (1) as the positive class.
type ConfusionMatrix struct {
	TrueNegative  int `json:"true_negative"`
	FalsePositive int `json:"false_positive"`
	FalseNegative int `json:"false_negative"`
	TruePositive  int `json:"true_positive"`
}

// Evaluate computes accuracy, precision, recall, F1 and ROC-AUC. Ratios
// with a zero denominator are reported as 0. yProba may be nil.
func Evaluate(yTrue, yPred []int, yProba []float64) (Metrics, error) {
	if len(yTrue) != len(yPred) {
		return Metrics{}, fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(yTrue), len(yPred))
	}
	if yProba != nil && len(yProba) != len(yTrue) {
		return Metrics{}, fmt.Errorf("%w: %d labels, %d probabilities", ErrLengthMismatch, len(yTrue), len(yProba))
	}
	if len(yTrue) == 0 {
		return Metrics{}, ErrEmptyInput
	}

	cm, err := Confusion(yTrue, yPred)
	if err != nil {
		return Metrics{}, err
	}

	m := Metrics{
		Accuracy:  ratio(cm.TruePositive+cm.TrueNegative, len(yTrue)),
		Precision: ratio(cm.TruePositive, cm.TruePositive+cm.FalsePositive),
		Recall:    ratio(cm.TruePositive, cm.TruePositive+cm.FalseNegative),
	}
	if m.Precision+m.Recall > 0 {
		m.F1Score = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	if yProba != nil {
		if auc, ok := ROCAUC(yTrue, yProba); ok {
			m.ROCAUC = &auc
		}
	}
	return m, nil
}

// Confusion tallies predictions against ground truth.
func Confusion(yTrue, yPred []int) (ConfusionMatrix, error) {
	if len(yTrue) != len(yPred) {
		return ConfusionMatrix{}, fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(yTrue), len(yPred))
	}

	var cm ConfusionMatrix
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			cm.TruePositive++
		case yTrue[i] == 1:
			cm.FalseNegative++
		case yPred[i] == 1:
			cm.FalsePositive++
		default:
			cm.TrueNegative++
		}
	}
	return cm, nil
}

// ROCAUC returns the area under the ROC curve via the Mann-Whitney rank
// statistic, averaging ranks of tied scores. ok is false when yTrue does not
// contain both classes or lengths differ.
func ROCAUC(yTrue []int, scores []float64) (auc float64, ok bool) {
	if len(yTrue) != len(scores) {
		return 0, false
	}

	var positives, negatives int
	for _, y := range yTrue {
		if y == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0, false
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	var positiveRankSum float64
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue[order[k]] == 1 {
				positiveRankSum += avgRank
			}
		}
		i = j + 1
	}

	p, n := float64(positives), float64(negatives)
	return (positiveRankSum - p*(p+1)/2) / (p * n), true
}

// AsMap flattens metrics for logs and registries; an undefined ROC-AUC is omitted.
func (m Metrics) AsMap() map[string]float64 {
	out := map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1_score":  m.F1Score,
	}
	if m.ROCAUC != nil {
		out["roc_auc"] = *m.ROCAUC
	}
	return out
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
