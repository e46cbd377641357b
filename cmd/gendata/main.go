package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hypo-churn/internal/common"
	"hypo-churn/internal/dataset"
	"hypo-churn/internal/logging"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		rows     = flag.Int("rows", 10000, "Number of customers to generate")
		seed     = flag.Int64("seed", 0, "Random seed (0 = time based)")
		output   = flag.String("output", "data/processed/mortgage_churn.csv", "Output CSV path")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	closer := logging.Setup(logging.Options{Level: *logLevel, Console: true})
	defer closer.Close()

	if *rows <= 0 {
		log.Fatal().Int("rows", *rows).Msg("Row count must be positive")
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	fmt.Printf("Generating %d synthetic customers...\n", *rows)
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Output: %s\n", *output)

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}

	table := dataset.Generate(*rows, *seed)
	if err := dataset.WriteCSV(*output, table); err != nil {
		log.Fatal().Err(err).Msg("Failed to write dataset")
	}

	labels, err := table.Column(common.DefaultTargetColumn)
	if err != nil {
		log.Fatal().Err(err).Msg("Generated table has no target column")
	}
	churned := 0
	for _, v := range labels {
		if v == "1" {
			churned++
		}
	}

	fmt.Printf("Generated %d customers (churn rate %.1f%%)\n", table.Len(), float64(churned)/float64(table.Len())*100)
}
