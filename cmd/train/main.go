package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hypo-churn/internal/common"
	"hypo-churn/internal/dataset"
	"hypo-churn/internal/evaluation"
	"hypo-churn/internal/logging"
	"hypo-churn/internal/ml"
	"hypo-churn/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath   = flag.String("data", "data/processed/mortgage_churn.csv", "Path to training CSV")
		target     = flag.String("target", common.DefaultTargetColumn, "Target column")
		modelType  = flag.String("model-type", common.DefaultModelType, "Model type: "+strings.Join(ml.Types(), ", "))
		modelName  = flag.String("name", "", "Model name (default "+common.ModelNamePrefix+"<model-type>)")
		dropCols   = flag.String("drop", "RowNumber,CustomerId,Surname", "Comma-separated columns to drop before encoding")
		testSize   = flag.Float64("test-size", 0.2, "Fraction of rows held out for evaluation")
		seed       = flag.Int64("seed", 42, "Random seed")
		numTrees   = flag.Int("trees", 0, "Number of trees for tree ensembles (0 = default)")
		maxDepth   = flag.Int("max-depth", 0, "Maximum tree depth (0 = default)")
		repeats    = flag.Int("importance-repeats", 5, "Permutation importance repeats (0 disables)")
		modelsDir  = flag.String("models-dir", common.DefaultModelsDir, "Directory for model artifacts")
		registry   = flag.String("registry", "", "Model registry file (default <models-dir>/registry.db)")
		outputPath = flag.String("output", "reports", "Output directory for evaluation reports")
		activate   = flag.Bool("activate", true, "Activate and publish the new model version")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	closer := logging.Setup(logging.Options{Level: *logLevel, Console: true})
	defer closer.Close()

	if *modelName == "" {
		*modelName = ml.DefaultName(*modelType)
	}
	if *registry == "" {
		*registry = filepath.Join(*modelsDir, common.RegistryFileName)
	}

	fmt.Println("=== Training Configuration ===")
	fmt.Printf("Data: %s\n", *dataPath)
	fmt.Printf("Target: %s\n", *target)
	fmt.Printf("Model: %s (%s)\n", *modelName, *modelType)
	fmt.Printf("Test Size: %.2f\n", *testSize)
	fmt.Printf("Seed: %d\n", *seed)
	fmt.Printf("Models Directory: %s\n", *modelsDir)
	fmt.Println("==============================")

	started := time.Now()

	table, err := dataset.Load(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}
	table, err = dataset.Clean(table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to clean dataset")
	}

	features, targetValues, err := dataset.Split(table, *target)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to split target")
	}
	features = features.DropIfPresent(parseList(*dropCols)...)

	labels, err := dataset.ParseLabels(targetValues)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse target labels")
	}
	matrix, err := dataset.Encode(features)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode features")
	}

	part, err := dataset.TrainTestSplit(matrix, labels, *testSize, *seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to split train/test")
	}
	log.Info().
		Int("train_rows", part.Train.Len()).
		Int("test_rows", part.Test.Len()).
		Int("features", len(matrix.Names)).
		Msg("Dataset prepared")

	model, err := ml.New(*modelType, ml.Options{Seed: *seed, NumTrees: *numTrees, MaxDepth: *maxDepth})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model")
	}

	trainStart := time.Now()
	if err := model.Train(part.Train.Rows, part.TrainLabels); err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
	log.Info().Dur("duration", time.Since(trainStart)).Msg("Model trained")

	report, err := evaluate(model, part, *repeats, *seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}
	report.ModelName = *modelName
	report.ModelType = *modelType
	report.Dataset = *dataPath
	report.PrintSummary(os.Stdout, 10)
	if err := report.Write(*outputPath); err != nil {
		log.Error().Err(err).Msg("Failed to write reports")
	}

	artifact := &ml.Artifact{
		Name:         *modelName,
		FeatureNames: matrix.Names,
		Model:        model,
		Metrics: ml.ModelMetrics{
			Accuracy:        report.Metrics.Accuracy,
			Precision:       report.Metrics.Precision,
			Recall:          report.Metrics.Recall,
			F1Score:         report.Metrics.F1Score,
			ROCAUC:          report.Metrics.ROCAUC,
			TrainingSamples: part.Train.Len(),
			TestSamples:     part.Test.Len(),
		},
	}

	version, err := register(*modelsDir, *registry, artifact, *activate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register model")
	}

	run := storage.TrainingRun{
		ID:           uuid.NewString(),
		Dataset:      *dataPath,
		ModelName:    *modelName,
		ModelType:    *modelType,
		ModelVersion: version.Version,
		StartedAt:    started,
		Duration:     time.Since(started),
		Rows:         table.Len(),
		Metrics:      report.Metrics.AsMap(),
	}
	if err := recordRun(*registry, run); err != nil {
		log.Warn().Err(err).Msg("Failed to record training run")
	}

	log.Info().
		Str("model", *modelName).
		Str("version", version.Version).
		Bool("active", *activate).
		Str("output", *outputPath).
		Msg("Training completed successfully")
}

func evaluate(model ml.Model, part *dataset.Partition, repeats int, seed int64) (*evaluation.Report, error) {
	proba, err := model.PredictProba(part.Test.Rows)
	if err != nil {
		return nil, err
	}
	pred, err := model.Predict(part.Test.Rows)
	if err != nil {
		return nil, err
	}

	m, err := evaluation.Evaluate(part.TestLabels, pred, proba)
	if err != nil {
		return nil, err
	}
	cm, err := evaluation.Confusion(part.TestLabels, pred)
	if err != nil {
		return nil, err
	}

	report := &evaluation.Report{
		TrainRows:   part.Train.Len(),
		TestRows:    part.Test.Len(),
		Metrics:     m,
		Confusion:   cm,
		GeneratedAt: time.Now().UTC(),
	}
	if repeats > 0 {
		report.Importance, err = evaluation.PermutationImportance(model, part.Test.Rows, part.TestLabels, part.Test.Names, repeats, seed)
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}

func register(modelsDir, registry string, a *ml.Artifact, activate bool) (ml.ModelVersion, error) {
	store, err := storage.Open(registry)
	if err != nil {
		return ml.ModelVersion{}, err
	}
	defer store.Close()

	mm := ml.NewModelManager(modelsDir, store)
	version, err := mm.AddVersion(a)
	if err != nil {
		return ml.ModelVersion{}, err
	}
	if activate {
		if err := mm.ActivateVersion(version.Name, version.Version); err != nil {
			return ml.ModelVersion{}, err
		}
		version.IsActive = true
		log.Info().Str("path", mm.PublishedPath(version.Name)).Msg("Model published")
	}
	return version, nil
}

func recordRun(registry string, run storage.TrainingRun) error {
	store, err := storage.Open(registry)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.StoreRun(run)
}

// parseList parses a comma-separated list
func parseList(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
