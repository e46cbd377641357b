package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"hypo-churn/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ConfigFile struct {
	Server struct {
		Port           int      `yaml:"port"`
		RequestTimeout string   `yaml:"requestTimeout"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		StatsInterval  string   `yaml:"statsInterval"`
	} `yaml:"server"`

	Model struct {
		Dir          string `yaml:"dir"`
		Name         string `yaml:"name"`
		FallbackName string `yaml:"fallbackName"`
		RegistryPath string `yaml:"registryPath"`
	} `yaml:"model"`

	Serving struct {
		MaxBatchSize int         `yaml:"maxBatchSize"`
		RiskLevels   []RiskLevel `yaml:"riskLevels"`
		CacheSize    int         `yaml:"cacheSize"`
		CacheTTL     string      `yaml:"cacheTTL"`
	} `yaml:"serving"`

	RateLimit struct {
		Enabled *bool      `yaml:"enabled"`
		Limits  RateLimits `yaml:"limits"`
	} `yaml:"rateLimit"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Load reads settings from CONFIG_FILE when set, otherwise from the
// environment. A .env file in the working directory is honoured in both cases.
func Load() (Settings, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Settings{}, err
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout := parseDurationOr(config.Server.RequestTimeout, 30*time.Second)
	cacheTTL := parseDurationOr(config.Serving.CacheTTL, 10*time.Minute)
	statsInterval := parseDurationOr(config.Server.StatsInterval, time.Second)

	riskLevels := config.Serving.RiskLevels
	if len(riskLevels) == 0 {
		riskLevels = DefaultRiskLevels()
	}

	limits := mergeRateLimits(config.RateLimit.Limits, DefaultRateLimits())
	rateLimitEnabled := true
	if config.RateLimit.Enabled != nil {
		rateLimitEnabled = *config.RateLimit.Enabled
	}

	settings := Settings{
		Port:              getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		ModelsDir:         getEnvOrDefault(common.EnvModelsDir, stringOr(config.Model.Dir, common.DefaultModelsDir)),
		ModelName:         getEnvOrDefault(common.EnvModelName, stringOr(config.Model.Name, common.DefaultModelName)),
		FallbackModelName: getEnvOrDefault(common.EnvFallbackModelName, stringOr(config.Model.FallbackName, common.DefaultFallbackModelName)),
		RegistryPath:      getEnvOrDefault(common.EnvRegistryPath, config.Model.RegistryPath),
		MaxBatchSize:      getIntFromEnvOrConfig(common.EnvMaxBatchSize, config.Serving.MaxBatchSize, common.DefaultMaxBatchSize),
		RiskLevels:        riskLevels,
		CacheSize:         getIntFromEnvOrConfig(common.EnvCacheSize, config.Serving.CacheSize, common.DefaultCacheSize),
		CacheTTL:          getDurationOrDefault(common.EnvCacheTTL, cacheTTL),
		RequestTimeout:    getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		AllowedOrigins:    getOriginsFromEnvOrConfig(config.Server.AllowedOrigins),
		RateLimitEnabled:  getBoolOrDefault(common.EnvRateLimitEnabled, rateLimitEnabled),
		RateLimits:        limits,
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, stringOr(config.Log.Level, common.DefaultLogLevel)),
		LogFile:           getEnvOrDefault(common.EnvLogFile, config.Log.File),
		StatsInterval:     getDurationOrDefault(common.EnvStatsInterval, statsInterval),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Port:              getIntOrDefault(common.EnvPort, common.DefaultPort),
		ModelsDir:         getEnvOrDefault(common.EnvModelsDir, common.DefaultModelsDir),
		ModelName:         getEnvOrDefault(common.EnvModelName, common.DefaultModelName),
		FallbackModelName: getEnvOrDefault(common.EnvFallbackModelName, common.DefaultFallbackModelName),
		RegistryPath:      os.Getenv(common.EnvRegistryPath), // optional
		MaxBatchSize:      getIntOrDefault(common.EnvMaxBatchSize, common.DefaultMaxBatchSize),
		RiskLevels:        DefaultRiskLevels(),
		CacheSize:         getIntOrDefault(common.EnvCacheSize, common.DefaultCacheSize),
		CacheTTL:          getDurationOrDefault(common.EnvCacheTTL, 10*time.Minute),
		RequestTimeout:    getDurationOrDefault(common.EnvRequestTimeout, 30*time.Second),
		AllowedOrigins:    getOriginsFromEnvOrConfig(nil),
		RateLimitEnabled:  getBoolOrDefault(common.EnvRateLimitEnabled, true),
		RateLimits:        DefaultRateLimits(),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFile:           os.Getenv(common.EnvLogFile),
		StatsInterval:     getDurationOrDefault(common.EnvStatsInterval, time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getOriginsFromEnvOrConfig(configOrigins []string) []string {
	if env := os.Getenv(common.EnvAllowedOrigins); env != "" {
		return strings.Split(env, ",")
	}
	if len(configOrigins) > 0 {
		return configOrigins
	}
	return []string{"*"}
}

func parseDurationOr(v string, defaultValue time.Duration) time.Duration {
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

func stringOr(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func mergeRateLimits(configured, defaults RateLimits) RateLimits {
	pick := func(v, d int) int {
		if v != 0 {
			return v
		}
		return d
	}
	return RateLimits{
		Root:        pick(configured.Root, defaults.Root),
		Health:      pick(configured.Health, defaults.Health),
		ModelInfo:   pick(configured.ModelInfo, defaults.ModelInfo),
		Predict:     pick(configured.Predict, defaults.Predict),
		Batch:       pick(configured.Batch, defaults.Batch),
		Probability: pick(configured.Probability, defaults.Probability),
	}
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}

	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory cannot be empty")
	}
	if settings.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	if settings.MaxBatchSize < common.MinMaxBatchSize || settings.MaxBatchSize > common.MaxMaxBatchSize {
		return fmt.Errorf("max batch size must be between %d and %d, got %d",
			common.MinMaxBatchSize, common.MaxMaxBatchSize, settings.MaxBatchSize)
	}

	if settings.CacheSize < 0 || settings.CacheSize > common.MaxCacheSize {
		return fmt.Errorf("cache size must be between 0 and %d, got %d", common.MaxCacheSize, settings.CacheSize)
	}
	if settings.CacheSize > 0 && settings.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive when caching is enabled, got %v", settings.CacheTTL)
	}

	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 5m, got %v", settings.RequestTimeout)
	}
	if settings.StatsInterval < 100*time.Millisecond || settings.StatsInterval > time.Minute {
		return fmt.Errorf("stats interval must be between 100ms and 1m, got %v", settings.StatsInterval)
	}

	if err := ValidateRiskLevels(settings.RiskLevels); err != nil {
		return err
	}

	if settings.RateLimitEnabled {
		limits := map[string]int{
			"root":        settings.RateLimits.Root,
			"health":      settings.RateLimits.Health,
			"modelInfo":   settings.RateLimits.ModelInfo,
			"predict":     settings.RateLimits.Predict,
			"batch":       settings.RateLimits.Batch,
			"probability": settings.RateLimits.Probability,
		}
		for route, perMinute := range limits {
			if perMinute <= 0 {
				return fmt.Errorf("rate limit for %s must be positive, got %d", route, perMinute)
			}
		}
	}

	return nil
}

// ValidateRiskLevels checks that cut points are strictly increasing within
// (0, 1] and that exactly the last level is unbounded.
func ValidateRiskLevels(levels []RiskLevel) error {
	if len(levels) < 2 {
		return fmt.Errorf("at least two risk levels are required, got %d", len(levels))
	}

	seen := make(map[string]bool, len(levels))
	prev := 0.0
	for i, level := range levels {
		if level.Name == "" {
			return fmt.Errorf("risk level %d has no name", i)
		}
		if seen[level.Name] {
			return fmt.Errorf("duplicate risk level %q", level.Name)
		}
		seen[level.Name] = true

		last := i == len(levels)-1
		if last {
			if level.Below != 0 {
				return fmt.Errorf("last risk level %q must not declare a cut point", level.Name)
			}
			continue
		}
		if level.Below <= prev || level.Below > 1 {
			return fmt.Errorf("risk level %q cut point must be in (%.2f, 1], got %f", level.Name, prev, level.Below)
		}
		prev = level.Below
	}

	return nil
}
