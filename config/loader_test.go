// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineYAML = `
pipeline:
  input:
    - type: moderation
      options:
        strategy: block
        threshold: 0.7
  output_stream:
    - type: token-limiter
      name: limiter
      options:
        limit: 200
        strategy: abort
        count_mode: part
    - type: batch
      options:
        batch_size: 3
        max_wait: 50ms
  output_result:
    - type: structured-output
  detector_cache:
    enabled: true
    redis_ttl: 10m

stream:
  dialect: anthropic
  high_water_mark: 16

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(writeConfig(t, pipelineYAML)).Load()
	require.NoError(t, err)

	require.Len(t, cfg.Pipeline.Input, 1)
	assert.Equal(t, "moderation", cfg.Pipeline.Input[0].DisplayName())
	require.Len(t, cfg.Pipeline.OutputStream, 2)
	assert.Equal(t, "limiter", cfg.Pipeline.OutputStream[0].DisplayName())
	assert.Equal(t, "batch", cfg.Pipeline.OutputStream[1].DisplayName())
	require.Len(t, cfg.Pipeline.OutputResult, 1)

	assert.True(t, cfg.Pipeline.DetectorCache.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.DetectorCache.RedisTTL)
	// 未出现的字段保留默认值
	assert.Equal(t, 1000, cfg.Pipeline.DetectorCache.LocalMaxSize)

	assert.Equal(t, "anthropic", cfg.Stream.Dialect)
	assert.Equal(t, 16, cfg.Stream.HighWaterMark)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestProcessorConfig_Decode(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(writeConfig(t, pipelineYAML)).Load()
	require.NoError(t, err)

	var limiter struct {
		Limit     int    `yaml:"limit"`
		Strategy  string `yaml:"strategy"`
		CountMode string `yaml:"count_mode"`
	}
	require.NoError(t, cfg.Pipeline.OutputStream[0].Decode(&limiter))
	assert.Equal(t, 200, limiter.Limit)
	assert.Equal(t, "abort", limiter.Strategy)
	assert.Equal(t, "part", limiter.CountMode)

	var batch struct {
		BatchSize int           `yaml:"batch_size"`
		MaxWait   time.Duration `yaml:"max_wait"`
	}
	require.NoError(t, cfg.Pipeline.OutputStream[1].Decode(&batch))
	assert.Equal(t, 3, batch.BatchSize)
	assert.Equal(t, 50*time.Millisecond, batch.MaxWait)

	// 没有 options 时保留目标的原值
	keep := struct {
		Name string `yaml:"name"`
	}{Name: "unchanged"}
	require.NoError(t, cfg.Pipeline.OutputResult[0].Decode(&keep))
	assert.Equal(t, "unchanged", keep.Name)

	bad := ProcessorConfig{Type: "batch", Options: map[string]any{"batch_size": "many"}}
	var target struct {
		BatchSize int `yaml:"batch_size"`
	}
	assert.Error(t, bad.Decode(&target))
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("AGENTSTREAM_STREAM_DIALECT", "openai")
	t.Setenv("AGENTSTREAM_STREAM_HIGH_WATER_MARK", "8")
	t.Setenv("AGENTSTREAM_LLM_API_KEY", "sk-test")
	t.Setenv("AGENTSTREAM_LLM_TIMEOUT", "5s")
	t.Setenv("AGENTSTREAM_PIPELINE_DETECTOR_RATE_LIMIT_RPS", "2.5")
	t.Setenv("AGENTSTREAM_PIPELINE_DETECTOR_RATE_LIMIT_WAIT", "true")
	t.Setenv("AGENTSTREAM_LOG_OUTPUT_PATHS", "stderr, /tmp/agentstream.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Stream.Dialect)
	assert.Equal(t, 8, cfg.Stream.HighWaterMark)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2.5, cfg.Pipeline.DetectorRateLimit.RPS)
	assert.True(t, cfg.Pipeline.DetectorRateLimit.Wait)
	assert.Equal(t, []string{"stderr", "/tmp/agentstream.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	t.Setenv("AGENTSTREAM_STREAM_DIALECT", "openai")

	cfg, err := NewLoader().WithConfigPath(writeConfig(t, pipelineYAML)).Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Stream.Dialect)
	assert.Equal(t, 16, cfg.Stream.HighWaterMark)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LOG_LEVEL", "warn")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTSTREAM_STREAM_HIGH_WATER_MARK", "lots")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_WithValidator(t *testing.T) {
	requireKey := func(cfg *Config) error {
		if cfg.LLM.APIKey == "" {
			return assert.AnError
		}
		return nil
	}
	_, err := NewLoader().WithValidator(requireKey).Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/agentstream.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "agentflow", cfg.Stream.Dialect)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "stream:\n  dialect: [invalid\n")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults"},
		{
			name:    "unknown dialect",
			mutate:  func(c *Config) { c.Stream.Dialect = "gemini" },
			wantErr: "stream.dialect",
		},
		{
			name:    "negative high water mark",
			mutate:  func(c *Config) { c.Stream.HighWaterMark = -1 },
			wantErr: "high_water_mark",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log level",
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Telemetry.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
		{
			name: "missing processor type",
			mutate: func(c *Config) {
				c.Pipeline.OutputStream = []ProcessorConfig{{Name: "x"}}
			},
			wantErr: "type is required",
		},
		{
			name: "duplicate names in one list",
			mutate: func(c *Config) {
				c.Pipeline.OutputStream = []ProcessorConfig{{Type: "pii"}, {Type: "pii"}}
			},
			wantErr: "duplicate processor name",
		},
		{
			name: "same name across lists is allowed",
			mutate: func(c *Config) {
				c.Pipeline.Input = []ProcessorConfig{{Type: "pii"}}
				c.Pipeline.OutputStream = []ProcessorConfig{{Type: "pii"}}
			},
		},
		{
			name:    "rate limit without burst",
			mutate:  func(c *Config) { c.Pipeline.DetectorRateLimit = DetectorRateLimitConfig{RPS: 1} },
			wantErr: "burst",
		},
		{
			name: "breaker without threshold",
			mutate: func(c *Config) {
				c.Pipeline.DetectorBreaker = DetectorBreakerConfig{Enabled: true}
			},
			wantErr: "detector_breaker.threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustLoad(t *testing.T) {
	cfg := MustLoad(writeConfig(t, pipelineYAML))
	assert.Equal(t, "anthropic", cfg.Stream.Dialect)

	assert.Panics(t, func() {
		MustLoad(writeConfig(t, "log:\n  level: loud\n"))
	})
}
