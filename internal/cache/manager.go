// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/config"
	"github.com/BaSui01/agentstream/internal/tlsutil"
)

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// ErrClosed Manager 已关闭
var ErrClosed = errors.New("cache manager is closed")

// Options 连接之外的管理参数
type Options struct {
	// HealthCheckInterval 后台 Ping 间隔，<=0 表示不检查
	HealthCheckInterval time.Duration
	// DialTimeout 初始化时 Ping 的超时
	DialTimeout time.Duration
}

// DefaultOptions 返回默认参数
func DefaultOptions() Options {
	return Options{
		HealthCheckInterval: 30 * time.Second,
		DialTimeout:         5 * time.Second,
	}
}

// Manager Redis 连接管理器
type Manager struct {
	redis  *redis.Client
	opts   Options
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewManager 创建连接并验证连通性
func NewManager(ctx context.Context, cfg config.RedisConfig, opts Options, logger *zap.Logger) (*Manager, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ro := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		ro.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(ro)

	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultOptions().DialTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		opts:   opts,
		logger: logger.With(zap.String("component", "cache")),
		stop:   make(chan struct{}),
	}
	if opts.HealthCheckInterval > 0 {
		m.wg.Add(1)
		go m.healthCheckLoop()
	}

	m.logger.Info("cache manager initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Bool("tls", cfg.TLS))
	return m, nil
}

// Client 返回底层客户端
func (m *Manager) Client() *redis.Client { return m.redis }

// Ping 检查连通性
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return m.redis.Ping(ctx).Err()
}

// Close 停止健康检查并关闭连接；重复调用返回 nil
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("closing cache manager")
	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
		if err := m.redis.Ping(ctx).Err(); err != nil {
			m.logger.Error("cache health check failed", zap.Error(err))
		} else {
			m.logger.Debug("cache health check passed")
		}
		cancel()
	}
}
