package serving

import (
	"hypo-churn/internal/cfg"
	"hypo-churn/internal/common"
)

// RiskLevel returns the name of the first level whose cut point lies above p.
// The last level catches everything else.
func RiskLevel(levels []cfg.RiskLevel, p float64) string {
	for i, level := range levels {
		if i == len(levels)-1 || p < level.Below {
			return level.Name
		}
	}
	return ""
}

// PredictionResult is the outcome for one customer.
type PredictionResult struct {
	Prediction       int     `json:"prediction"`
	PredictionLabel  string  `json:"prediction_label"`
	ChurnProbability float64 `json:"churn_probability"`
	Confidence       float64 `json:"confidence"`
	RiskLevel        string  `json:"risk_level"`
}

func newResult(p float64, label int, levels []cfg.RiskLevel) PredictionResult {
	r := PredictionResult{
		Prediction:       label,
		PredictionLabel:  common.LabelNotChurned,
		ChurnProbability: p,
		Confidence:       max(p, 1-p),
		RiskLevel:        RiskLevel(levels, p),
	}
	if label == 1 {
		r.PredictionLabel = common.LabelChurned
	}
	return r
}
