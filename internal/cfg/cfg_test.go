package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 8000 {
					t.Errorf("expected default port 8000, got %d", settings.Port)
				}
				if settings.MaxBatchSize != 100 {
					t.Errorf("expected default max batch size 100, got %d", settings.MaxBatchSize)
				}
				if settings.ModelPath() != filepath.Join("models", "best_model_gradient_boosting.json.gz") {
					t.Errorf("unexpected model path %s", settings.ModelPath())
				}
				if len(settings.RiskLevels) != 4 || settings.RiskLevels[3].Name != "Critical" {
					t.Errorf("expected default risk levels, got %v", settings.RiskLevels)
				}
				if settings.RateLimits.Batch != 5 {
					t.Errorf("expected batch rate limit 5, got %d", settings.RateLimits.Batch)
				}
				if len(settings.AllowedOrigins) != 1 || settings.AllowedOrigins[0] != "*" {
					t.Errorf("expected wildcard origin, got %v", settings.AllowedOrigins)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"PORT":               "9090",
				"MODEL_NAME":         "custom",
				"MODELS_DIR":         "/srv/models",
				"MAX_BATCH_SIZE":     "250",
				"CACHE_TTL":          "1m",
				"ALLOWED_ORIGINS":    "https://a.example,https://b.example",
				"RATE_LIMIT_ENABLED": "false",
				"LOG_LEVEL":          "debug",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 9090 {
					t.Errorf("expected port 9090, got %d", settings.Port)
				}
				if settings.ModelPath() != filepath.Join("/srv/models", "custom.json.gz") {
					t.Errorf("unexpected model path %s", settings.ModelPath())
				}
				if settings.MaxBatchSize != 250 {
					t.Errorf("expected max batch size 250, got %d", settings.MaxBatchSize)
				}
				if settings.CacheTTL != time.Minute {
					t.Errorf("expected cache TTL 1m, got %v", settings.CacheTTL)
				}
				if len(settings.AllowedOrigins) != 2 {
					t.Errorf("expected 2 origins, got %v", settings.AllowedOrigins)
				}
				if settings.RateLimitEnabled {
					t.Error("expected rate limiting to be disabled")
				}
				if settings.LogLevel != "debug" {
					t.Errorf("expected debug log level, got %s", settings.LogLevel)
				}
			},
		},
		{
			name:    "invalid port",
			envVars: map[string]string{"PORT": "80"},
			wantErr: true,
		},
		{
			name:    "batch size too large",
			envVars: map[string]string{"MAX_BATCH_SIZE": "20000"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadFromEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `
server:
  port: 8100
  requestTimeout: 10s
  allowedOrigins: ["https://churn.example"]
model:
  dir: ./artifacts
  name: best_model_random_forest
serving:
  maxBatchSize: 50
  cacheSize: 16
  cacheTTL: 30s
  riskLevels:
    - name: Low
      below: 0.3
    - name: Medium
      below: 0.7
    - name: High
rateLimit:
  limits:
    predict: 20
log:
  level: warn
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	settings, err := loadFromYAML(configPath)
	if err != nil {
		t.Fatalf("loadFromYAML() error = %v", err)
	}

	if settings.Port != 8100 {
		t.Errorf("expected port 8100, got %d", settings.Port)
	}
	if settings.RequestTimeout != 10*time.Second {
		t.Errorf("expected request timeout 10s, got %v", settings.RequestTimeout)
	}
	if settings.ModelName != "best_model_random_forest" {
		t.Errorf("expected model name from YAML, got %s", settings.ModelName)
	}
	if settings.FallbackModelName != "best_model_random_forest" {
		t.Errorf("expected default fallback model name, got %s", settings.FallbackModelName)
	}
	if settings.MaxBatchSize != 50 {
		t.Errorf("expected max batch size 50, got %d", settings.MaxBatchSize)
	}
	if len(settings.RiskLevels) != 3 || settings.RiskLevels[1].Below != 0.7 {
		t.Errorf("unexpected risk levels %v", settings.RiskLevels)
	}
	if settings.RateLimits.Predict != 20 {
		t.Errorf("expected predict rate limit 20, got %d", settings.RateLimits.Predict)
	}
	if settings.RateLimits.Batch != 5 {
		t.Errorf("expected default batch rate limit 5, got %d", settings.RateLimits.Batch)
	}
	if !settings.RateLimitEnabled {
		t.Error("expected rate limiting enabled by default")
	}
	if settings.LogLevel != "warn" {
		t.Errorf("expected warn log level, got %s", settings.LogLevel)
	}
}

func TestLoadFromYAML_EnvOverrides(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: 8100\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("PORT", "8200")
	t.Setenv("MODEL_NAME", "from_env")

	settings, err := loadFromYAML(configPath)
	if err != nil {
		t.Fatalf("loadFromYAML() error = %v", err)
	}
	if settings.Port != 8200 {
		t.Errorf("expected env port 8200, got %d", settings.Port)
	}
	if settings.ModelName != "from_env" {
		t.Errorf("expected env model name, got %s", settings.ModelName)
	}
}

func TestLoadFromYAML_Errors(t *testing.T) {
	tempDir := t.TempDir()

	if _, err := loadFromYAML(filepath.Join(tempDir, "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}

	badPath := filepath.Join(tempDir, "bad.yaml")
	if err := os.WriteFile(badPath, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := loadFromYAML(badPath); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoad_UsesConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: 8300\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", configPath)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if settings.Port != 8300 {
		t.Errorf("expected port 8300, got %d", settings.Port)
	}
}

func TestLoadDotEnv(t *testing.T) {
	tempDir := t.TempDir()

	if err := loadDotEnv(filepath.Join(tempDir, ".env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}

	envPath := filepath.Join(tempDir, ".env")
	if err := os.WriteFile(envPath, []byte("CHURN_DOTENV_PROBE=loaded\n"), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("CHURN_DOTENV_PROBE", "")
	os.Unsetenv("CHURN_DOTENV_PROBE")

	if err := loadDotEnv(envPath); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
	if got := os.Getenv("CHURN_DOTENV_PROBE"); got != "loaded" {
		t.Errorf("expected value from .env, got %q", got)
	}
}
