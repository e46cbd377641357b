package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"hypo-churn/internal/cfg"
	"hypo-churn/internal/dataset"
	"hypo-churn/internal/logging"
	"hypo-churn/internal/ml"
	"hypo-churn/internal/serving"

	"github.com/rs/zerolog/log"
)

const chunkSize = 1000

var resultColumns = []string{"prediction", "prediction_label", "churn_probability", "confidence", "risk_level", "error"}

func main() {
	var (
		inputPath  = flag.String("input", "", "Input CSV file with customer data")
		outputPath = flag.String("output", "", "Output CSV file for predictions")
		single     = flag.String("single", "", "JSON object with a single customer")
		modelName  = flag.String("model", "", "Model name (default from configuration)")
		logLevel   = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	closer := logging.Setup(logging.Options{Level: *logLevel, Console: true})
	defer closer.Close()

	if *single == "" && (*inputPath == "" || *outputPath == "") {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nError: specify either -single or both -input and -output")
		os.Exit(1)
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *modelName != "" {
		c.ModelName = *modelName
	}

	artifact, path, err := ml.LoadFirst(c.ModelPath(), c.FallbackModelPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model")
	}
	fmt.Printf("Model: %s (%s) from %s\n", artifact.Name, artifact.ModelType(), path)

	svc := serving.NewService(serving.OptionsFromArtifact(artifact, serving.Options{
		RiskLevels:   c.RiskLevels,
		MaxBatchSize: chunkSize,
	}))

	if *single != "" {
		if err := predictSingle(svc, *single); err != nil {
			log.Fatal().Err(err).Msg("Prediction failed")
		}
		return
	}
	if err := predictCSV(svc, *inputPath, *outputPath); err != nil {
		log.Fatal().Err(err).Msg("Prediction failed")
	}
}

func predictSingle(svc *serving.Service, data string) error {
	var rec serving.CustomerRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}

	result, err := svc.Predict(context.Background(), rec)
	if err != nil {
		return err
	}

	rule := strings.Repeat("=", 70)
	fmt.Println(rule)
	fmt.Println("PREDICTION RESULT")
	fmt.Println(rule)
	fmt.Printf("Prediction: %s\n", result.PredictionLabel)
	fmt.Printf("Churn Probability: %.2f%%\n", result.ChurnProbability*100)
	fmt.Printf("Confidence: %.2f%%\n", result.Confidence*100)
	fmt.Printf("Risk Level: %s\n", result.RiskLevel)
	fmt.Println(rule)
	return nil
}

func predictCSV(svc *serving.Service, inputPath, outputPath string) error {
	table, err := dataset.Load(inputPath)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d customers from %s\n", table.Len(), inputPath)

	out := dataset.NewTable(append(append([]string{}, table.Columns...), resultColumns...), make([][]string, 0, table.Len()))
	riskCounts := map[string]int{}
	var churned, failed int

	for start := 0; start < table.Len(); start += chunkSize {
		end := min(start+chunkSize, table.Len())
		records := make([]serving.CustomerRecord, 0, end-start)
		for _, row := range table.Rows[start:end] {
			records = append(records, toRecord(table.Columns, row))
		}

		result, err := svc.PredictBatch(context.Background(), records)
		if err != nil && result == nil {
			return err
		}

		for i, item := range result.Predictions {
			row := append(append([]string{}, table.Rows[start+i]...), formatItem(item)...)
			out.Rows = append(out.Rows, row)
			if item.PredictionResult == nil {
				failed++
				continue
			}
			riskCounts[item.RiskLevel]++
			if item.Prediction == 1 {
				churned++
			}
		}
	}

	if err := dataset.WriteCSV(outputPath, out); err != nil {
		return err
	}
	fmt.Printf("Predictions saved to %s\n", outputPath)

	printSummary(table.Len(), churned, failed, riskCounts)
	return nil
}

// toRecord skips missing cells so that optional attributes get derived.
func toRecord(columns, row []string) serving.CustomerRecord {
	rec := make(serving.CustomerRecord, len(columns))
	for i, col := range columns {
		if i < len(row) && !dataset.IsMissing(row[i]) {
			rec[col] = row[i]
		}
	}
	return rec
}

func formatItem(item serving.BatchItem) []string {
	if item.PredictionResult == nil {
		msg := ""
		if item.Error != nil {
			msg = item.Error.Error()
		}
		return []string{"", "", "", "", "", msg}
	}
	return []string{
		strconv.Itoa(item.Prediction),
		item.PredictionLabel,
		strconv.FormatFloat(item.ChurnProbability, 'f', 6, 64),
		strconv.FormatFloat(item.Confidence, 'f', 6, 64),
		item.RiskLevel,
		"",
	}
}

func printSummary(total, churned, failed int, riskCounts map[string]int) {
	scored := total - failed
	rule := strings.Repeat("=", 70)
	fmt.Println(rule)
	fmt.Println("PREDICTION SUMMARY")
	fmt.Println(rule)
	fmt.Printf("Total samples: %d\n", total)
	if failed > 0 {
		fmt.Printf("Rejected samples: %d\n", failed)
	}
	if scored > 0 {
		fmt.Printf("Predicted churners: %d (%.1f%%)\n", churned, float64(churned)/float64(scored)*100)
		fmt.Printf("Predicted non-churners: %d (%.1f%%)\n", scored-churned, float64(scored-churned)/float64(scored)*100)
	}

	levels := make([]string, 0, len(riskCounts))
	for level := range riskCounts {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	fmt.Println("\nRisk Level Distribution:")
	for _, level := range levels {
		fmt.Printf("  %-10s %d\n", level, riskCounts[level])
	}
}
