package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config agentstream 的完整配置结构
type Config struct {
	// Pipeline 处理器链
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Stream 输入方言与 tee 背压
	Stream StreamConfig `yaml:"stream" env:"STREAM"`

	// LLM 检测器与结构化输出使用的二级模型
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Redis 检测结果缓存
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry OpenTelemetry 配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// PipelineConfig 三类钩子的处理器列表，按声明顺序执行
type PipelineConfig struct {
	Input        []ProcessorConfig `yaml:"input" env:"-"`
	OutputStream []ProcessorConfig `yaml:"output_stream" env:"-"`
	OutputResult []ProcessorConfig `yaml:"output_result" env:"-"`

	// DetectorCache 对 moderation / pii / system-prompt 的检测结果缓存
	DetectorCache DetectorCacheConfig `yaml:"detector_cache" env:"DETECTOR_CACHE"`

	// DetectorRateLimit 限制二级检测调用频率
	DetectorRateLimit DetectorRateLimitConfig `yaml:"detector_rate_limit" env:"DETECTOR_RATE_LIMIT"`

	// DetectorBreaker 二级检测调用熔断
	DetectorBreaker DetectorBreakerConfig `yaml:"detector_breaker" env:"DETECTOR_BREAKER"`
}

// ProcessorConfig 单个处理器声明
type ProcessorConfig struct {
	// Type 处理器实现，如 token-limiter / batch / moderation / pii / system-prompt / structured-output
	Type string `yaml:"type"`
	// Name 唯一名称，为空时取 Type
	Name string `yaml:"name,omitempty"`
	// Options 由对应实现的配置结构解码
	Options map[string]any `yaml:"options,omitempty"`
}

// DisplayName 返回生效的处理器名称
func (p ProcessorConfig) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Type
}

// Decode 把 Options 解码到 out（按 yaml tag）
func (p ProcessorConfig) Decode(out any) error {
	if len(p.Options) == 0 {
		return nil
	}
	data, err := yaml.Marshal(p.Options)
	if err != nil {
		return fmt.Errorf("processor %s: encode options: %w", p.DisplayName(), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("processor %s: decode options: %w", p.DisplayName(), err)
	}
	return nil
}

// DetectorCacheConfig 检测缓存配置；Redis.Addr 为空时只用本地 LRU
type DetectorCacheConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	LocalMaxSize int           `yaml:"local_max_size" env:"LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `yaml:"local_ttl" env:"LOCAL_TTL"`
	RedisTTL     time.Duration `yaml:"redis_ttl" env:"REDIS_TTL"`
	KeyPrefix    string        `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DetectorRateLimitConfig 检测调用限流；RPS <= 0 表示不限流
type DetectorRateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"RPS"`
	Burst int     `yaml:"burst" env:"BURST"`
	// Wait 为 true 时排队等待，否则超限直接放行内容（fail-open）
	Wait bool `yaml:"wait" env:"WAIT"`
}

// DetectorBreakerConfig 检测调用熔断；打开期间检测直接放行
type DetectorBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	Threshold        int           `yaml:"threshold" env:"THRESHOLD"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls" env:"HALF_OPEN_MAX_CALLS"`
}

// StreamConfig 流配置
type StreamConfig struct {
	// Dialect 输入事件方言：agentflow / openai / anthropic
	Dialect string `yaml:"dialect" env:"DIALECT"`
	// HighWaterMark 最慢读者允许落后的块数
	HighWaterMark int `yaml:"high_water_mark" env:"HIGH_WATER_MARK"`
}

// LLMConfig 二级模型配置
type LLMConfig struct {
	// Provider 目前支持 openai（含兼容端点）
	Provider     string        `yaml:"provider" env:"PROVIDER"`
	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	Organization string        `yaml:"organization" env:"ORGANIZATION"`
	Model        string        `yaml:"model" env:"MODEL"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	TLS          bool   `yaml:"tls" env:"TLS"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// Addr /metrics 监听地址，为空时不暴露
	Addr string `yaml:"addr" env:"ADDR"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// Insecure 使用明文 gRPC 连接 collector
	Insecure bool `yaml:"insecure" env:"INSECURE"`
}

// =============================================================================
// 🔍 验证
// =============================================================================

var (
	validDialects   = []string{"agentflow", "openai", "anthropic"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	for list, procs := range map[string][]ProcessorConfig{
		"input":         c.Pipeline.Input,
		"output_stream": c.Pipeline.OutputStream,
		"output_result": c.Pipeline.OutputResult,
	} {
		seen := make(map[string]bool, len(procs))
		for i, p := range procs {
			if p.Type == "" {
				errs = append(errs, fmt.Sprintf("pipeline.%s[%d]: type is required", list, i))
				continue
			}
			name := p.DisplayName()
			if seen[name] {
				errs = append(errs, fmt.Sprintf("pipeline.%s: duplicate processor name %q", list, name))
			}
			seen[name] = true
		}
	}
	if c.Pipeline.DetectorRateLimit.RPS > 0 && c.Pipeline.DetectorRateLimit.Burst <= 0 {
		errs = append(errs, "pipeline.detector_rate_limit.burst must be positive")
	}
	if b := c.Pipeline.DetectorBreaker; b.Enabled && b.Threshold <= 0 {
		errs = append(errs, "pipeline.detector_breaker.threshold must be positive")
	}

	if !contains(validDialects, c.Stream.Dialect) {
		errs = append(errs, fmt.Sprintf("stream.dialect must be one of %s", strings.Join(validDialects, ", ")))
	}
	if c.Stream.HighWaterMark < 0 {
		errs = append(errs, "stream.high_water_mark must not be negative")
	}

	if !contains(validLogLevels, c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if !contains(validLogFormats, c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
