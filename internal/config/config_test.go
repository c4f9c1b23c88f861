package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutYAMLOrEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 2*time.Second, cfg.RetryBaseDelay)
	require.Equal(t, 2*time.Second, cfg.RateLimitDelay)
	require.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MAX_VERTEX_RETRIES", "8")
	t.Setenv("VERTEX_RETRY_BASE_DELAY_SECONDS", "1.5")
	t.Setenv("PREVIEW_BUILDER_ENABLED", "true")
	t.Setenv("MODEL_STRAWMAN", "claude-override")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8, cfg.MaxRetries)
	require.Equal(t, 1500*time.Millisecond, cfg.RetryBaseDelay)
	require.True(t, cfg.Features.PreviewBuilder)
	require.Equal(t, "claude-override", cfg.Models.Strawman)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	path := t.TempDir() + "/settings.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  strawman: claude-sonnet
services:
  text:
    base_url: http://text.internal
    timeout_seconds: 15
features:
  preview_builder: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "claude-sonnet", cfg.Models.Strawman)
	require.Equal(t, "http://text.internal", cfg.Services["text"].BaseURL)
	require.Equal(t, 15*time.Second, cfg.Services["text"].Timeout)
	require.True(t, cfg.Features.PreviewBuilder)
}
