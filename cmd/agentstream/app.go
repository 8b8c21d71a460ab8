package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/config"
	"github.com/BaSui01/agentstream/internal/cache"
	"github.com/BaSui01/agentstream/internal/metrics"
	"github.com/BaSui01/agentstream/internal/server"
	"github.com/BaSui01/agentstream/internal/telemetry"
	llmfactory "github.com/BaSui01/agentstream/llm/factory"
	"github.com/BaSui01/agentstream/pipeline"
)

// app 持有一次命令执行期间的外部资源
type app struct {
	deps      pipeline.Deps
	registry  *prometheus.Registry
	telemetry *telemetry.Providers
	cache     *cache.Manager
	ops       *server.Manager
	logger    *zap.Logger
}

// newApp 按配置初始化遥测、指标、二级模型、检测缓存与运维端点
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}
	a.deps.Logger = logger

	tp, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.telemetry = tp
	a.deps.TracerProvider = tp.TracerProvider()

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.deps.Metrics = metrics.NewCollector(cfg.Metrics.Namespace, a.registry, logger)
	}

	if cfg.LLM.APIKey != "" {
		provider, err := llmfactory.NewProviderFromConfig(cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
		a.deps.Provider = provider
		if mod, err := llmfactory.NewModerationFromConfig(cfg.LLM, logger); err == nil {
			a.deps.Moderation = mod
		} else {
			logger.Warn("moderation endpoint unavailable", zap.Error(err))
		}
	}

	var checks []server.HealthCheck
	if cfg.Pipeline.DetectorCache.Enabled && cfg.Redis.Addr != "" {
		mgr, err := cache.NewManager(ctx, cfg.Redis, cache.DefaultOptions(), logger)
		if err != nil {
			// 缓存不可用时退化为本地 LRU
			logger.Warn("detector cache redis unavailable, using local cache only", zap.Error(err))
		} else {
			a.cache = mgr
			a.deps.Redis = mgr.Client()
			checks = append(checks, server.HealthCheck{Name: "redis", Check: mgr.Ping})
		}
	}

	if cfg.Metrics.Addr != "" {
		if a.registry == nil {
			a.registry = prometheus.NewRegistry()
		}
		scfg := server.DefaultConfig()
		scfg.Addr = cfg.Metrics.Addr
		a.ops = server.NewManager(server.NewOpsHandler(a.registry, logger, checks...), scfg, logger)
		if err := a.ops.Start(); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("start ops server: %w", err)
		}
	}
	return a, nil
}

// Close 按启动的逆序释放资源
func (a *app) Close(ctx context.Context) {
	if a.ops != nil {
		if err := a.ops.Shutdown(ctx); err != nil {
			a.logger.Warn("ops server shutdown failed", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
}
