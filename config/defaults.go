// =============================================================================
// 📦 agentstream 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置；处理器列表默认为空
func DefaultConfig() *Config {
	return &Config{
		Pipeline:  DefaultPipelineConfig(),
		Stream:    DefaultStreamConfig(),
		LLM:       DefaultLLMConfig(),
		Redis:     DefaultRedisConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultPipelineConfig 返回默认处理器链配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DetectorCache: DetectorCacheConfig{
			Enabled:      false,
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
			RedisTTL:     time.Hour,
			KeyPrefix:    "agentstream:detect:",
		},
		DetectorRateLimit: DetectorRateLimitConfig{
			RPS:   0,
			Burst: 5,
		},
		DetectorBreaker: DetectorBreakerConfig{
			Enabled:          false,
			Threshold:        5,
			Timeout:          10 * time.Second,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		},
	}
}

// DefaultStreamConfig 返回默认流配置
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Dialect:       "agentflow",
		HighWaterMark: 256,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		Timeout:    60 * time.Second,
		MaxRetries: 2,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置；Addr 为空表示不使用 Redis
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "agentstream",
	}
}

// DefaultLogConfig 返回默认日志配置；输出到 stderr，stdout 留给文本流
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentstream",
		SampleRate:   0.1,
		Insecure:     true,
	}
}
