// Package config loads the orchestrator's non-registry settings: per-stage
// model identifiers, per-service base URLs/timeouts, retry/rate-limit
// defaults, and feature flags. Settings come from a YAML file with
// environment variable overrides, matching the precedence the taxonomy
// registry documents for the rest of the system's configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Models names the LLM model identifier used at each dialog stage. All
// stages may share one model or be tuned independently.
type Models struct {
	Greeting   string `yaml:"greeting"`
	Clarifying string `yaml:"clarifying"`
	Plan       string `yaml:"plan"`
	Strawman   string `yaml:"strawman"`
	Refinement string `yaml:"refinement"`
	Intent     string `yaml:"intent"`
}

// ServiceEndpoint configures a downstream HTTP dependency's base URL and
// per-request timeout.
type ServiceEndpoint struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"-"`
	// TimeoutSeconds is the YAML-facing form of Timeout.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// FeatureFlags gates optional behavior per spec §6.4.
type FeatureFlags struct {
	PreviewBuilder        bool `yaml:"preview_builder"`
	StreamlinedProtocol   bool `yaml:"streamlined_protocol"`
}

// Config is the fully resolved, immutable settings object the orchestrator
// is constructed from. Load builds one from a YAML file plus environment
// overrides; callers must treat it as read-only thereafter.
type Config struct {
	Models   Models                     `yaml:"models"`
	Services map[string]ServiceEndpoint `yaml:"services"`
	Features FeatureFlags               `yaml:"features"`

	// MaxRetries is the Stage-6 generator-call retry budget (MAX_VERTEX_RETRIES).
	MaxRetries int
	// RetryBaseDelay is the exponential-backoff base delay
	// (VERTEX_RETRY_BASE_DELAY_SECONDS).
	RetryBaseDelay time.Duration
	// RateLimitDelay is the minimum per-service inter-call delay
	// (RATE_LIMIT_DELAY_SECONDS).
	RateLimitDelay time.Duration

	// RegistryPath is the taxonomy registry JSON document path.
	RegistryPath string
	// ListenAddr is the Connection Handler's HTTP/WebSocket listen address.
	ListenAddr string
}

// Load reads yamlPath (if non-empty and present) and layers environment
// variable overrides on top, matching the precedence the teacher's env-var
// loaders use: YAML supplies defaults, environment variables win.
func Load(yamlPath string) (Config, error) {
	var cfg Config
	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}

	for name, svc := range cfg.Services {
		svc.Timeout = time.Duration(svc.TimeoutSeconds * float64(time.Second))
		if svc.Timeout <= 0 {
			svc.Timeout = 30 * time.Second
		}
		cfg.Services[name] = svc
	}

	cfg.MaxRetries = envIntOr("MAX_VERTEX_RETRIES", 5)
	cfg.RetryBaseDelay = envSecondsOr("VERTEX_RETRY_BASE_DELAY_SECONDS", 2*time.Second)
	cfg.RateLimitDelay = envSecondsOr("RATE_LIMIT_DELAY_SECONDS", 2*time.Second)

	cfg.RegistryPath = envOr("TAXONOMY_REGISTRY_PATH", cfg.RegistryPath)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	cfg.ListenAddr = envOr("LISTEN_ADDR", cfg.ListenAddr)

	if v := os.Getenv("PREVIEW_BUILDER_ENABLED"); v != "" {
		cfg.Features.PreviewBuilder = v == "true"
	}
	if v := os.Getenv("STREAMLINED_PROTOCOL_ENABLED"); v != "" {
		cfg.Features.StreamlinedProtocol = v == "true"
	}

	cfg.Models.Greeting = envOr("MODEL_GREETING", cfg.Models.Greeting)
	cfg.Models.Clarifying = envOr("MODEL_CLARIFYING", cfg.Models.Clarifying)
	cfg.Models.Plan = envOr("MODEL_PLAN", cfg.Models.Plan)
	cfg.Models.Strawman = envOr("MODEL_STRAWMAN", cfg.Models.Strawman)
	cfg.Models.Refinement = envOr("MODEL_REFINEMENT", cfg.Models.Refinement)
	cfg.Models.Intent = envOr("MODEL_INTENT", cfg.Models.Intent)

	return cfg, nil
}

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envIntOr returns the environment variable as int or a default.
func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// envSecondsOr returns the environment variable, interpreted as a count of
// seconds, as a time.Duration, or a default.
func envSecondsOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return defaultVal
}
