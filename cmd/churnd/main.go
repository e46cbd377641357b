package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hypo-churn/internal/api"
	"hypo-churn/internal/cfg"
	"hypo-churn/internal/logging"
	"hypo-churn/internal/metrics"
	"hypo-churn/internal/ml"
	"hypo-churn/internal/serving"
	"hypo-churn/internal/storage"

	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	closer := logging.Setup(logging.Options{Level: c.LogLevel, File: c.LogFile})
	defer closer.Close()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	artifact := loadModel(c)
	svc := serving.NewService(serving.OptionsFromArtifact(artifact, serving.Options{
		RiskLevels:   c.RiskLevels,
		MaxBatchSize: c.MaxBatchSize,
		CacheSize:    c.CacheSize,
		CacheTTL:     c.CacheTTL,
		Metrics:      mw,
	}))

	server := api.New(svc, c, mw, m.Gatherer())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	waitForShutdown(ctx, cancel, errCh)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("prediction API stopped")
}

// loadModel resolves the served artifact: the registry's active version when
// a registry is configured, then the published model, then the fallback
// model. A missing model is not fatal; the API reports it as unavailable.
func loadModel(c cfg.Settings) *ml.Artifact {
	var candidates []string
	if path := activeRegistryPath(c); path != "" {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, c.ModelPath(), c.FallbackModelPath())

	artifact, path, err := ml.LoadFirst(candidates...)
	if err != nil {
		log.Error().Err(err).Strs("candidates", candidates).Msg("No model could be loaded, serving without a model")
		return nil
	}

	log.Info().
		Str("path", path).
		Str("model", artifact.Name).
		Str("version", artifact.Version).
		Str("type", artifact.ModelType()).
		Msg("Model loaded successfully")
	return artifact
}

func activeRegistryPath(c cfg.Settings) string {
	if c.RegistryPath == "" {
		return ""
	}
	if _, err := os.Stat(c.RegistryPath); err != nil {
		log.Warn().Err(err).Str("registry", c.RegistryPath).Msg("Model registry not found")
		return ""
	}

	store, err := storage.Open(c.RegistryPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open model registry")
		return ""
	}
	defer store.Close()

	version, err := ml.NewModelManager(c.ModelsDir, store).GetCurrentVersion(c.ModelName)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to resolve active model version")
		}
		return ""
	}
	return version.Path
}

// waitForShutdown waits for a shutdown signal or a server failure.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, errCh <-chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
