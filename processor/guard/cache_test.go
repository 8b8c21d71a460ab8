package guard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentstream/internal/metrics"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCachedDetector_Redis(t *testing.T) {
	mr, rdb := newRedis(t)
	inner := &stubDetector{det: &Detection{Scores: map[string]float64{"hate": 0.7}, Spans: []Span{{Type: "hate", Start: 0, End: 4}}}}
	cfg := CacheConfig{RedisTTL: 10 * time.Minute}
	c := NewCachedDetector(inner, rdb, cfg, nil, nil)
	ctx := context.Background()
	req := DetectRequest{Kind: KindStream, Text: "text"}

	first, err := c.Detect(ctx, req)
	require.NoError(t, err)
	second, err := c.Detect(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.Calls())
	assert.Equal(t, first, second)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], DefaultCacheConfig().KeyPrefix)
	assert.Equal(t, 10*time.Minute, mr.TTL(keys[0]))

	// 另一个实例共享 Redis
	other := NewCachedDetector(inner, rdb, cfg, nil, nil)
	_, err = other.Detect(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.Calls())

	// 上下文不同即视为不同请求
	_, err = c.Detect(ctx, DetectRequest{Kind: KindStream, Text: "text", Context: []string{"prev"}})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Calls())
}

func TestCachedDetector_ErrorsNotCached(t *testing.T) {
	_, rdb := newRedis(t)
	inner := &stubDetector{err: errDetectorDown}
	c := NewCachedDetector(inner, rdb, DefaultCacheConfig(), nil, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Detect(context.Background(), DetectRequest{Text: "x"})
		require.ErrorIs(t, err, errDetectorDown)
	}
	assert.Equal(t, 2, inner.Calls())
}

func TestCachedDetector_RedisDownFallsThrough(t *testing.T) {
	mr, rdb := newRedis(t)
	inner := &stubDetector{det: &Detection{}}
	c := NewCachedDetector(inner, rdb, CacheConfig{}, nil, nil)
	mr.Close()

	_, err := c.Detect(context.Background(), DetectRequest{Text: "x"})
	require.NoError(t, err)
	_, err = c.Detect(context.Background(), DetectRequest{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Calls())
}

func TestCachedDetector_LocalOnlyAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("test", reg, nil)
	inner := &stubDetector{det: &Detection{}}
	c := NewCachedDetector(inner, nil, CacheConfig{LocalMaxSize: 2, LocalTTL: time.Minute}, nil, m)
	ctx := context.Background()

	for _, text := range []string{"a", "a", "b", "a"} {
		_, err := c.Detect(ctx, DetectRequest{Text: text})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.Calls())

	n, err := testutil.GatherAndCount(reg, "test_detector_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2, time.Minute)
	a, b, d := &Detection{Reason: "a"}, &Detection{Reason: "b"}, &Detection{Reason: "d"}
	c.Set("a", a)
	c.Set("b", b)
	_, _ = c.Get("a")
	c.Set("d", d)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 2, c.Len())
}

func TestLRUCache_Expiry(t *testing.T) {
	c := newLRUCache(2, time.Millisecond)
	c.Set("a", &Detection{})
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
