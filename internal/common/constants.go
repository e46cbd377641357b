package common

// Service identity
const (
	ServiceName    = "Mortgage Churn Prediction API"
	ServiceVersion = "1.0.0"
)

// Prediction labels
const (
	LabelChurned    = "Churned"
	LabelNotChurned = "Not Churned"
)

// Environment variable keys
const (
	EnvConfigFile        = "CONFIG_FILE"
	EnvPort              = "PORT"
	EnvModelsDir         = "MODELS_DIR"
	EnvModelName         = "MODEL_NAME"
	EnvFallbackModelName = "FALLBACK_MODEL_NAME"
	EnvRegistryPath      = "REGISTRY_PATH"
	EnvMaxBatchSize      = "MAX_BATCH_SIZE"
	EnvCacheSize         = "CACHE_SIZE"
	EnvCacheTTL          = "CACHE_TTL"
	EnvRequestTimeout    = "REQUEST_TIMEOUT"
	EnvAllowedOrigins    = "ALLOWED_ORIGINS"
	EnvRateLimitEnabled  = "RATE_LIMIT_ENABLED"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFile           = "LOG_FILE"
	EnvStatsInterval     = "STATS_INTERVAL"
	EnvKaggleUsername    = "KAGGLE_USERNAME"
	EnvKaggleKey         = "KAGGLE_KEY"
)

// Configuration defaults
const (
	DefaultPort              = 8000
	DefaultModelsDir         = "models"
	ModelNamePrefix          = "best_model_"
	DefaultModelType         = "gradient_boosting"
	DefaultModelName         = ModelNamePrefix + DefaultModelType
	DefaultFallbackModelName = ModelNamePrefix + "random_forest"
	DefaultMaxBatchSize      = 100
	DefaultCacheSize         = 1024
	DefaultLogLevel          = "info"
	DefaultTargetColumn      = "Exited"
	DefaultDataDir           = "data/raw"
	DefaultKaggleBaseURL     = "https://www.kaggle.com/api/v1"
	ArtifactExtension        = ".json.gz"
	RegistryFileName         = "registry.db"
)

// Per-route rate limits (requests per minute per client IP)
const (
	DefaultRateRoot        = 30
	DefaultRateHealth      = 60
	DefaultRateModelInfo   = 30
	DefaultRatePredict     = 10
	DefaultRateBatch       = 5
	DefaultRateProbability = 15
)

// Validation constants
const (
	MinPort         = 1024
	MaxPort         = 65535
	MinMaxBatchSize = 1
	MaxMaxBatchSize = 10000
	MaxCacheSize    = 1_000_000
)
