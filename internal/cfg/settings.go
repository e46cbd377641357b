package cfg

import (
	"path/filepath"
	"time"

	"hypo-churn/internal/common"
)

type Settings struct {
	Port              int
	ModelsDir         string
	ModelName         string
	FallbackModelName string
	RegistryPath      string
	MaxBatchSize      int
	RiskLevels        []RiskLevel
	CacheSize         int
	CacheTTL          time.Duration
	RequestTimeout    time.Duration
	AllowedOrigins    []string
	RateLimitEnabled  bool
	RateLimits        RateLimits
	LogLevel          string
	LogFile           string
	StatsInterval     time.Duration
}

// RiskLevel is one bucket of the churn-probability scale. A probability p
// falls into the first level whose Below is greater than p; the last level
// has Below == 0 and catches everything else.
type RiskLevel struct {
	Name  string  `yaml:"name"`
	Below float64 `yaml:"below"`
}

// RateLimits holds requests-per-minute budgets per route and client IP.
type RateLimits struct {
	Root        int `yaml:"root"`
	Health      int `yaml:"health"`
	ModelInfo   int `yaml:"modelInfo"`
	Predict     int `yaml:"predict"`
	Batch       int `yaml:"batch"`
	Probability int `yaml:"probability"`
}

// DefaultRiskLevels mirrors the buckets the original service used.
func DefaultRiskLevels() []RiskLevel {
	return []RiskLevel{
		{Name: "Low", Below: 0.3},
		{Name: "Medium", Below: 0.6},
		{Name: "High", Below: 0.8},
		{Name: "Critical"},
	}
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		Root:        common.DefaultRateRoot,
		Health:      common.DefaultRateHealth,
		ModelInfo:   common.DefaultRateModelInfo,
		Predict:     common.DefaultRatePredict,
		Batch:       common.DefaultRateBatch,
		Probability: common.DefaultRateProbability,
	}
}

// ModelPath returns the artifact path for the configured model name.
func (s *Settings) ModelPath() string {
	return ArtifactPath(s.ModelsDir, s.ModelName)
}

// FallbackModelPath returns the artifact path for the fallback model name.
func (s *Settings) FallbackModelPath() string {
	return ArtifactPath(s.ModelsDir, s.FallbackModelName)
}

func ArtifactPath(dir, name string) string {
	return filepath.Join(dir, name+common.ArtifactExtension)
}
