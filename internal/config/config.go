// Package config loads worker configuration from environment variables,
// with optional YAML overrides for the parts that are awkward to express
// as env vars (the known-error-payload table, derivative settings).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DerivativeSetting is the target width and encode quality for one
// derivative variant.
type DerivativeSetting struct {
	Width   int `yaml:"width"`
	Quality int `yaml:"quality"`
}

// Config holds all configuration for the ingest worker.
type Config struct {
	// Catalog (Postgres)
	DatabaseURL string

	// Blob store
	StorageBaseURL string
	StorageBucket  string

	// Vision checker
	VisionAPIKey string
	VisionModel  string
	VisionURL    string

	// Pipeline tuning
	MaxImagePixels              int
	FetchTimeout                time.Duration
	RateLimiterGCInterval       time.Duration
	MinConfidenceForAssignment  float64
	VisionCheckLowerBound       float64
	VisionCheckUpperBound       float64
	VisionSampleRate            float64
	AssignOnDedupWithoutRecheck bool

	DerivativeSettings map[string]DerivativeSetting

	// Known-error-payload table: sourceName -> set of byte lengths that
	// indicate the upstream returned a placeholder, not a real image.
	KnownErrorPayloads map[string]map[int]struct{}

	// Async workflow runner (DBOS)
	DBOSDatabaseURL string
	DBOSQueueName   string
	DBOSConcurrency int

	HTTPAddr string
}

// rawOverrides mirrors the optional YAML override file.
type rawOverrides struct {
	Derivatives map[string]DerivativeSetting `yaml:"derivatives"`
	KnownErrorPayloads map[string][]int       `yaml:"known_error_payloads"`
}

// Load reads configuration from environment variables, applying an
// optional YAML overrides file (CONFIG_PATH, default unset = skip).
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StorageBaseURL: envOrDefault("STORAGE_BASE_URL", "http://localhost:54321"),
		StorageBucket:  envOrDefault("STORAGE_BUCKET", "card-images"),

		VisionAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		VisionModel:  envOrDefault("VISION_MODEL", "google/gemini-2.5-flash-preview"),
		VisionURL:    envOrDefault("VISION_URL", "https://openrouter.ai/api/v1/chat/completions"),

		MaxImagePixels:              envOrDefaultInt("MAX_IMAGE_PIXELS", 20_000_000),
		FetchTimeout:                envOrDefaultDuration("FETCH_TIMEOUT", 30*time.Second),
		RateLimiterGCInterval:       envOrDefaultDuration("RATE_LIMITER_GC_INTERVAL", 60*time.Second),
		MinConfidenceForAssignment:  envOrDefaultFloat("MIN_CONFIDENCE_FOR_ASSIGNMENT", 0.85),
		VisionCheckLowerBound:       envOrDefaultFloat("VISION_CHECK_LOWER_BOUND", 0.6),
		VisionCheckUpperBound:       envOrDefaultFloat("VISION_CHECK_UPPER_BOUND", 0.9),
		VisionSampleRate:            envOrDefaultFloat("VISION_SAMPLE_RATE", 0.1),
		AssignOnDedupWithoutRecheck: envOrDefaultBool("ASSIGN_ON_DEDUP_WITHOUT_RECHECK", true),

		DerivativeSettings: map[string]DerivativeSetting{
			"thumb":  {Width: 160, Quality: 75},
			"grid":   {Width: 360, Quality: 80},
			"detail": {Width: 960, Quality: 80},
		},

		KnownErrorPayloads: map[string]map[int]struct{}{
			"pokemontcg_api": {186316: struct{}{}},
		},

		DBOSDatabaseURL: envOrDefault("DBOS_SYSTEM_DATABASE_URL", ""),
		DBOSQueueName:   envOrDefault("DBOS_QUEUE_NAME", "default"),
		DBOSConcurrency: envOrDefaultInt("DBOS_CONCURRENCY", 4),

		HTTPAddr: envOrDefault("WORKER_HTTP_ADDR", ":8081"),
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := applyOverrides(cfg, path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func applyOverrides(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config overrides %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw rawOverrides
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return fmt.Errorf("parse config overrides YAML: %w", err)
	}

	for variant, setting := range raw.Derivatives {
		cfg.DerivativeSettings[variant] = setting
	}

	for source, lengths := range raw.KnownErrorPayloads {
		set, ok := cfg.KnownErrorPayloads[source]
		if !ok {
			set = make(map[int]struct{})
			cfg.KnownErrorPayloads[source] = set
		}
		for _, l := range lengths {
			set[l] = struct{}{}
		}
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
