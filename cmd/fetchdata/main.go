package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hypo-churn/internal/common"
	"hypo-churn/internal/dataset"
	"hypo-churn/internal/logging"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		all      = flag.Bool("all", false, "Download every catalogued dataset")
		names    = flag.String("datasets", "banking", "Comma-separated dataset names")
		dataDir  = flag.String("data-dir", common.DefaultDataDir, "Destination directory")
		baseURL  = flag.String("base-url", common.DefaultKaggleBaseURL, "Kaggle API base URL")
		timeout  = flag.Duration("timeout", 5*time.Minute, "Per-download timeout")
		list     = flag.Bool("list", false, "List catalogued datasets and exit")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	closer := logging.Setup(logging.Options{Level: *logLevel, Console: true})
	defer closer.Close()

	if *list {
		for _, src := range dataset.Catalogue {
			fmt.Printf("%-12s %-45s %s\n", src.Name, src.Ref, src.Description)
		}
		return
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	sources, err := selectSources(*all, *names)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid dataset selection")
	}

	downloader, err := dataset.NewDownloader(*baseURL, os.Getenv(common.EnvKaggleUsername), os.Getenv(common.EnvKaggleKey), *timeout)
	if err != nil {
		log.Fatal().Err(err).Msgf("Set %s and %s to download datasets", common.EnvKaggleUsername, common.EnvKaggleKey)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	succeeded := 0
	for _, src := range sources {
		files, err := downloader.Download(ctx, src, *dataDir)
		if err != nil {
			log.Error().Err(err).Str("dataset", src.Name).Msg("Download failed")
			continue
		}
		succeeded++
		for _, f := range files {
			fmt.Printf("  %s\n", f)
		}
	}

	fmt.Printf("\nResult: %d/%d datasets downloaded to %s\n", succeeded, len(sources), *dataDir)
	if succeeded < len(sources) {
		os.Exit(1)
	}
}

func selectSources(all bool, names string) ([]dataset.Source, error) {
	if all {
		return dataset.Catalogue, nil
	}

	var sources []dataset.Source
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		src, ok := dataset.LookupSource(name)
		if !ok {
			return nil, fmt.Errorf("unknown dataset %q", name)
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no dataset selected")
	}
	return sources, nil
}
