package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/internal/metrics"
	"github.com/BaSui01/agentstream/llm/moderation"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/testutil/mocks"
	"github.com/BaSui01/agentstream/types"
)

func replayText(t *testing.T, p *Pipeline, jsonl string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := p.Replay(ctx, strings.NewReader(jsonl), "")
	require.NoError(t, err)
	text, err := out.Text(ctx)
	require.NoError(t, err)
	return text
}

func TestPipeline_ReplayRedactsPII(t *testing.T) {
	cfg := loadConfig(t, `
pipeline:
  output_stream:
    - type: pii
      options:
        kinds: [email]
`)
	p, err := New(cfg, Deps{Logger: zap.NewNop()})
	require.NoError(t, err)

	text := replayText(t, p, agentflowJSONL("Mail me at bob@example.com", " today."))
	assert.Equal(t, "Mail me at [EMAIL] today.", text)
}

func TestPipeline_ReplayStampsRunID(t *testing.T) {
	p, err := New(loadConfig(t, ""), Deps{})
	require.NoError(t, err)

	ctx := context.Background()
	out, err := p.Replay(ctx, strings.NewReader(agentflowJSONL("hi")), "run-42")
	require.NoError(t, err)
	assert.Equal(t, "run-42", out.RunID())

	var chunks []stream.Chunk
	for c := range out.FullStream(ctx) {
		chunks = append(chunks, c)
	}
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "run-42", c.RunID)
	}
	assert.Equal(t, stream.TypeFinish, chunks[len(chunks)-1].Type)
}

func TestPipeline_ModerationBlocks(t *testing.T) {
	cfg := loadConfig(t, `
pipeline:
  output_stream:
    - type: moderation
      options:
        strategy: block
        threshold: 0.8
`)
	mod := &keywordModeration{keyword: "attack", category: "violence"}
	p, err := New(cfg, Deps{Moderation: mod})
	require.NoError(t, err)

	ctx := context.Background()
	out, err := p.Replay(ctx, strings.NewReader(agentflowJSONL("Plan the ", "attack now")), "")
	require.NoError(t, err)

	tw, err := out.Tripwire(ctx)
	require.NoError(t, err)
	require.NotNil(t, tw)
	assert.Equal(t, "moderation", tw.Processor)
	assert.Contains(t, tw.Reason, "violence")

	text, err := out.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Plan the ", text)
}

func TestPipeline_DetectorCacheUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := loadConfig(t, `
pipeline:
  detector_cache:
    enabled: true
    local_max_size: 0
    key_prefix: "test:detect:"
  output_stream:
    - type: moderation
      options:
        strategy: warn
`)
	mod := &keywordModeration{keyword: "attack", category: "violence"}
	p, err := New(cfg, Deps{Moderation: mod, Redis: rdb})
	require.NoError(t, err)

	jsonl := agentflowJSONL("same text")
	text := replayText(t, p, jsonl)
	assert.Equal(t, "same text", text)
	replayText(t, p, jsonl)

	assert.Equal(t, 1, mod.Calls())
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "test:detect:"))
}

func TestPipeline_RateLimitFailsOpen(t *testing.T) {
	cfg := loadConfig(t, `
pipeline:
  detector_rate_limit:
    rps: 0.001
    burst: 1
  output_stream:
    - type: moderation
      options:
        strategy: block
`)
	mod := &keywordModeration{keyword: "attack", category: "violence"}
	p, err := New(cfg, Deps{Moderation: mod})
	require.NoError(t, err)

	// 第一次调用消耗唯一令牌，后续检测被限流并放行
	text := replayText(t, p, agentflowJSONL("fine ", "attack"))
	assert.Equal(t, "fine attack", text)
	assert.Equal(t, 1, mod.Calls())
}

func TestPipeline_StructuredOutput(t *testing.T) {
	cfg := loadConfig(t, `
pipeline:
  output_result:
    - type: structured-output
      options:
        error_strategy: strict
        schema:
          type: object
          properties:
            city: {type: string}
          required: [city]
`)
	provider := mocks.NewSuccessProvider(`{"city":"Paris"}`)
	p, err := New(cfg, Deps{Provider: provider})
	require.NoError(t, err)

	ctx := context.Background()
	out, err := p.Replay(ctx, strings.NewReader(agentflowJSONL("The weather in Paris is mild.")), "")
	require.NoError(t, err)

	obj, err := out.Object(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"city": "Paris"}, obj)
	assert.Equal(t, 1, provider.GetCallCount())
}

func TestPipeline_PrepareInput(t *testing.T) {
	cfg := loadConfig(t, `
pipeline:
  input:
    - type: pii
      options:
        kinds: [email]
`)
	p, err := New(cfg, Deps{})
	require.NoError(t, err)

	msgs, err := p.PrepareInput(context.Background(), []types.Message{
		types.NewUserMessage("reach me at alice@example.org"),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "reach me at [EMAIL]", msgs[0].Text())
}

func TestPipeline_RecordsRunMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("pipe", reg, zap.NewNop())

	p, err := New(loadConfig(t, ""), Deps{Metrics: collector})
	require.NoError(t, err)
	replayText(t, p, agentflowJSONL("a", "b"))

	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "pipe_runs_total")
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNormalizeJSONL_UnknownDialect(t *testing.T) {
	_, err := NormalizeJSONL(context.Background(), "cobol", strings.NewReader(""), "r", 0)
	require.Error(t, err)
}

func TestNormalizeJSONL_OpenAI(t *testing.T) {
	jsonl := strings.Join([]string{
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
	}, "\n")
	ch, err := NormalizeJSONL(context.Background(), "openai", strings.NewReader(jsonl), "r1", 4)
	require.NoError(t, err)

	var text strings.Builder
	var last stream.Chunk
	for c := range ch {
		text.WriteString(c.Text())
		last = c
	}
	assert.Equal(t, "Hello", text.String())
	assert.Equal(t, stream.TypeFinish, last.Type)
}

// flakyModeration 始终失败的审核端点
type flakyModeration struct{ keywordModeration }

func (f *flakyModeration) Moderate(ctx context.Context, req *moderation.ModerationRequest) (*moderation.ModerationResponse, error) {
	_, _ = f.keywordModeration.Moderate(ctx, req)
	return nil, errors.New("503 service unavailable")
}

func TestPipeline_DetectorBreakerShortCircuits(t *testing.T) {
	cfg := loadConfig(t, `
pipeline:
  detector_breaker:
    enabled: true
    threshold: 2
    reset_timeout: 1h
  output_stream:
    - type: moderation
      options:
        strategy: block
`)
	mod := &flakyModeration{keywordModeration{keyword: "attack", category: "violence"}}
	p, err := New(cfg, Deps{Moderation: mod})
	require.NoError(t, err)

	text := replayText(t, p, agentflowJSONL("one ", "two ", "three ", "four"))
	assert.Equal(t, "one two three four", text)
	assert.Equal(t, 2, mod.Calls())
}
