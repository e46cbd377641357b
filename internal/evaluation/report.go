package evaluation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Report is the outcome of evaluating one trained model on held-out data.
type Report struct {
	ModelName   string              `json:"model_name"`
	ModelType   string              `json:"model_type"`
	Dataset     string              `json:"dataset"`
	TrainRows   int                 `json:"train_rows"`
	TestRows    int                 `json:"test_rows"`
	Metrics     Metrics             `json:"metrics"`
	Confusion   ConfusionMatrix     `json:"confusion_matrix"`
	Importance  []FeatureImportance `json:"feature_importance,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

var metricOrder = []string{"accuracy", "precision", "recall", "f1_score", "roc_auc"}

// MetricLabel turns a metric key such as "f1_score" into "F1 Score".
// Safe for concurrent use.
func MetricLabel(key string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

// PrintResults writes a framed, human-readable metrics block.
func PrintResults(w io.Writer, title string, m Metrics) {
	values := m.AsMap()
	rule := strings.Repeat("=", 50)

	fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, title, rule)
	for _, key := range metricOrder {
		v, ok := values[key]
		if !ok {
			fmt.Fprintf(w, "%s: undefined\n", MetricLabel(key))
			continue
		}
		fmt.Fprintf(w, "%s: %.4f\n", MetricLabel(key), v)
	}
	fmt.Fprintf(w, "%s\n\n", rule)
}

// PrintSummary writes the metrics block followed by the confusion matrix
// and the top feature importances.
func (r *Report) PrintSummary(w io.Writer, topFeatures int) {
	PrintResults(w, fmt.Sprintf("Model Evaluation Results: %s (%s)", r.ModelName, r.ModelType), r.Metrics)

	fmt.Fprintf(w, "CONFUSION MATRIX\n")
	fmt.Fprintf(w, "----------------\n")
	fmt.Fprintf(w, "%-16s %12s %12s\n", "", "Pred Stayed", "Pred Churned")
	fmt.Fprintf(w, "%-16s %12d %12d\n", "Actual Stayed", r.Confusion.TrueNegative, r.Confusion.FalsePositive)
	fmt.Fprintf(w, "%-16s %12d %12d\n\n", "Actual Churned", r.Confusion.FalseNegative, r.Confusion.TruePositive)

	if len(r.Importance) == 0 {
		return
	}
	fmt.Fprintf(w, "FEATURE IMPORTANCE\n")
	fmt.Fprintf(w, "------------------\n")
	for i, fi := range r.Importance {
		if topFeatures > 0 && i >= topFeatures {
			break
		}
		fmt.Fprintf(w, "%2d. %-28s %.4f (±%.4f)\n", i+1, fi.Name, fi.Importance, fi.StdDev)
	}
	fmt.Fprintln(w)
}

// Write stores the report as evaluation_report.json and
// evaluation_summary.txt inside dir.
func (r *Report) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	jsonPath := filepath.Join(dir, "evaluation_report.json")
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	log.Info().Str("file", jsonPath).Msg("JSON report generated")

	summaryPath := filepath.Join(dir, "evaluation_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.PrintSummary(file, 0)
	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}
