package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/config"
	"github.com/BaSui01/agentstream/internal/metrics"
	"github.com/BaSui01/agentstream/llm"
	"github.com/BaSui01/agentstream/llm/circuitbreaker"
	"github.com/BaSui01/agentstream/llm/moderation"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/processor/guard"
)

// 内置处理器类型
const (
	TypeTokenLimiter     = "token-limiter"
	TypeBatch            = "batch"
	TypeModeration       = "moderation"
	TypePII              = "pii"
	TypeSystemPrompt     = "system-prompt"
	TypeStructuredOutput = "structured-output"
)

// Deps 处理器可能用到的外部依赖，均可为 nil
type Deps struct {
	// Provider 二级模型，供 llm 检测器与结构化输出使用
	Provider llm.Provider
	// Moderation 审核端点，供 moderation 处理器的默认检测器使用
	Moderation moderation.ModerationProvider
	// Redis 检测缓存的二级存储
	Redis *redis.Client

	Metrics        *metrics.Collector
	TracerProvider trace.TracerProvider
	Logger         *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Env 传给 Factory 的构建环境
type Env struct {
	Deps
	Pipeline config.PipelineConfig
}

// WrapDetector 按配置包装远程检测器，由内向外：熔断、限流、缓存（缓存命中不消耗令牌）
func (e *Env) WrapDetector(det guard.Detector) guard.Detector {
	if br := e.Pipeline.DetectorBreaker; br.Enabled {
		det = guard.NewBreakerDetector(det, circuitbreaker.New(det.Name(), circuitbreaker.Config{
			Threshold:        br.Threshold,
			Timeout:          br.Timeout,
			ResetTimeout:     br.ResetTimeout,
			HalfOpenMaxCalls: br.HalfOpenMaxCalls,
		}, e.logger()))
	}
	rl := e.Pipeline.DetectorRateLimit
	if rl.RPS > 0 {
		det = guard.NewRateLimitedDetector(det, guard.RateLimitConfig{RPS: rl.RPS, Burst: rl.Burst, Wait: rl.Wait})
	}
	dc := e.Pipeline.DetectorCache
	if dc.Enabled {
		det = guard.NewCachedDetector(det, e.Redis, guard.CacheConfig{
			LocalMaxSize: dc.LocalMaxSize,
			LocalTTL:     dc.LocalTTL,
			RedisTTL:     dc.RedisTTL,
			KeyPrefix:    dc.KeyPrefix,
		}, e.logger(), e.Metrics)
	}
	return det
}

// Factory 根据声明创建处理器
type Factory func(pc config.ProcessorConfig, env *Env) (processor.Processor, error)

// Registry 处理器类型注册表
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry 创建包含全部内置类型的注册表
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[TypeTokenLimiter] = newTokenLimiter
	r.factories[TypeBatch] = newBatcher
	r.factories[TypeModeration] = newModeration
	r.factories[TypePII] = newPII
	r.factories[TypeSystemPrompt] = newSystemPrompt
	r.factories[TypeStructuredOutput] = newStructuredOutput
	return r
}

// Register 注册自定义类型；类型名已存在时返回错误
func (r *Registry) Register(typ string, f Factory) error {
	if typ == "" || f == nil {
		return fmt.Errorf("register processor: empty type or nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[typ]; ok {
		return fmt.Errorf("processor type %q already registered", typ)
	}
	r.factories[typ] = f
	return nil
}

// Types 返回已注册的类型（排序）
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(typ string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	return f, ok
}

// Build 按声明顺序组装 Runner。处理器不支持所在列表的钩子时返回错误。
func (r *Registry) Build(cfg config.PipelineConfig, deps Deps) (*processor.Runner, error) {
	env := &Env{Deps: deps, Pipeline: cfg}

	input, err := r.buildList(processor.HookInput, cfg.Input, env)
	if err != nil {
		return nil, err
	}
	outStream, err := r.buildList(processor.HookOutputStream, cfg.OutputStream, env)
	if err != nil {
		return nil, err
	}
	outResult, err := r.buildList(processor.HookOutputResult, cfg.OutputResult, env)
	if err != nil {
		return nil, err
	}

	return processor.NewRunner(processor.Config{
		Input:        input,
		OutputStream: outStream,
		OutputResult: outResult,
	},
		processor.WithLogger(deps.Logger),
		processor.WithMetrics(deps.Metrics),
		processor.WithTracerProvider(deps.TracerProvider),
	)
}

func (r *Registry) buildList(hook string, decls []config.ProcessorConfig, env *Env) ([]processor.Processor, error) {
	procs := make([]processor.Processor, 0, len(decls))
	for _, pc := range decls {
		f, ok := r.lookup(pc.Type)
		if !ok {
			return nil, fmt.Errorf("%s: unknown processor type %q", hook, pc.Type)
		}
		p, err := f(pc, env)
		if err != nil {
			return nil, fmt.Errorf("%s: build %s: %w", hook, pc.DisplayName(), err)
		}
		if !supports(p, hook) {
			return nil, fmt.Errorf("%s: processor %s (%s) does not implement this hook", hook, pc.DisplayName(), pc.Type)
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func supports(p processor.Processor, hook string) bool {
	switch hook {
	case processor.HookInput:
		_, ok := p.(processor.InputProcessor)
		return ok
	case processor.HookOutputStream:
		_, ok := p.(processor.StreamProcessor)
		return ok
	case processor.HookOutputResult:
		_, ok := p.(processor.ResultProcessor)
		return ok
	}
	return false
}

var defaultRegistry = NewRegistry()

// Build 使用默认注册表组装 Runner
func Build(cfg config.PipelineConfig, deps Deps) (*processor.Runner, error) {
	return defaultRegistry.Build(cfg, deps)
}

// Register 向默认注册表注册自定义类型
func Register(typ string, f Factory) error {
	return defaultRegistry.Register(typ, f)
}
