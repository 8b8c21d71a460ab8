package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, StreamConfig{}, cfg.Stream)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.Empty(t, cfg.Pipeline.Input)
	assert.Empty(t, cfg.Pipeline.OutputStream)
	assert.Empty(t, cfg.Pipeline.OutputResult)
	require.NoError(t, cfg.Validate())
}

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	assert.False(t, cfg.DetectorCache.Enabled)
	assert.Equal(t, 1000, cfg.DetectorCache.LocalMaxSize)
	assert.Equal(t, 5*time.Minute, cfg.DetectorCache.LocalTTL)
	assert.Equal(t, "agentstream:detect:", cfg.DetectorCache.KeyPrefix)
	assert.Zero(t, cfg.DetectorRateLimit.RPS)
	assert.False(t, cfg.DetectorBreaker.Enabled)
	assert.Equal(t, 5, cfg.DetectorBreaker.Threshold)
	assert.Equal(t, 30*time.Second, cfg.DetectorBreaker.ResetTimeout)
}

func TestDefaultStreamConfig(t *testing.T) {
	cfg := DefaultStreamConfig()
	assert.Equal(t, "agentflow", cfg.Dialect)
	assert.Equal(t, 256, cfg.HighWaterMark)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxRetries)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "agentstream", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}
