package guard

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/internal/metrics"
	"github.com/BaSui01/agentstream/types"
)

// CacheConfig 检测结果缓存配置
type CacheConfig struct {
	LocalMaxSize int           `json:"local_max_size" yaml:"local_max_size"`
	LocalTTL     time.Duration `json:"local_ttl" yaml:"local_ttl"`
	RedisTTL     time.Duration `json:"redis_ttl" yaml:"redis_ttl"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultCacheConfig 默认配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     time.Hour,
		KeyPrefix:    "agentstream:detect:",
	}
}

// CachedDetector 两级缓存（本地 LRU + Redis）包装检测器。
// 相同检测器、钩子、上下文与文本的结果复用；错误不缓存。
type CachedDetector struct {
	inner   Detector
	local   *lruCache
	redis   *redis.Client
	cfg     CacheConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewCachedDetector 创建缓存检测器；rdb 为 nil 时只使用本地缓存
func NewCachedDetector(inner Detector, rdb *redis.Client, cfg CacheConfig, logger *zap.Logger, m *metrics.Collector) *CachedDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultCacheConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = def.RedisTTL
	}
	c := &CachedDetector{
		inner:   inner,
		redis:   rdb,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "detection_cache"), zap.String("detector", inner.Name())),
		metrics: m,
	}
	if cfg.LocalMaxSize > 0 {
		c.local = newLRUCache(cfg.LocalMaxSize, cfg.LocalTTL)
	}
	return c
}

func (c *CachedDetector) Name() string { return c.inner.Name() }

func (c *CachedDetector) Detect(ctx context.Context, req DetectRequest) (*Detection, error) {
	key := c.key(req)
	if det, ok := c.get(ctx, key); ok {
		c.metrics.RecordDetectorCall(c.inner.Name(), metrics.DetectorCached, 0)
		return det, nil
	}

	det, err := c.inner.Detect(ctx, req)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, det)
	return det, nil
}

// key sha256(detector|kind|context|text)
func (c *CachedDetector) key(req DetectRequest) string {
	h := sha256.New()
	h.Write([]byte(c.inner.Name()))
	h.Write([]byte{0})
	h.Write([]byte(req.Kind))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.Context, "\x1f")))
	h.Write([]byte{0})
	h.Write([]byte(req.Text))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *CachedDetector) get(ctx context.Context, key string) (*Detection, bool) {
	if c.local != nil {
		if det, ok := c.local.Get(key); ok {
			return det, true
		}
	}
	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, c.cfg.KeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get error", processorField(ctx), zap.Error(err))
		}
		return nil, false
	}
	var det Detection
	if err := json.Unmarshal(data, &det); err != nil {
		c.logger.Warn("corrupt cache entry", processorField(ctx), zap.String("key", key), zap.Error(err))
		return nil, false
	}
	// 回填本地缓存
	if c.local != nil {
		c.local.Set(key, &det)
	}
	return &det, true
}

func (c *CachedDetector) set(ctx context.Context, key string, det *Detection) {
	if c.local != nil {
		c.local.Set(key, det)
	}
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(det)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.cfg.KeyPrefix+key, data, c.cfg.RedisTTL).Err(); err != nil {
		c.logger.Warn("redis set error", processorField(ctx), zap.Error(err))
	}
}

func processorField(ctx context.Context) zap.Field {
	name, _ := types.ProcessorName(ctx)
	return zap.String("processor", name)
}

// ============================================================
// LRU 本地缓存
// ============================================================

type lruEntry struct {
	key       string
	det       *Detection
	expiresAt time.Time
}

type lruCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	items    map[string]*list.Element
}

func newLRUCache(capacity int, ttl time.Duration) *lruCache {
	return &lruCache{capacity: capacity, ttl: ttl, order: list.New(), items: make(map[string]*list.Element)}
}

func (c *lruCache) Get(key string) (*Detection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*lruEntry)
	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.det, true
}

func (c *lruCache) Set(key string, det *Detection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expires := time.Now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*lruEntry)
		e.det, e.expiresAt = det, expires
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.capacity {
		if tail := c.order.Back(); tail != nil {
			c.order.Remove(tail)
			delete(c.items, tail.Value.(*lruEntry).key)
		}
	}
	c.items[key] = c.order.PushFront(&lruEntry{key: key, det: det, expiresAt: expires})
}

func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
