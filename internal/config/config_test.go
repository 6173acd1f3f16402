package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")

	cfg := Load()

	assert.Equal(t, "gemini-2.5-flash", cfg.Ai.FastModel)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, float32(0.7), cfg.Ai.Temperature)
	assert.Equal(t, int32(4096), cfg.Ai.MaxOutputTokens)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("LLM_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("LLM_RETRY_BASE_DELAY", "50ms")
	t.Setenv("STREAM_TIMEOUT", "30s")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("LLM_TEMPERATURE", "not-a-number")

	cfg := Load()

	assert.Equal(t, "llama3", cfg.Ai.FastModel)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Stream.Timeout)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, float32(0.7), cfg.Ai.Temperature)
}
