package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentstream/llm/circuitbreaker"
	"github.com/BaSui01/agentstream/llm/moderation"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/types"
)

func TestRateLimitedDetector_Rejects(t *testing.T) {
	inner := &stubDetector{det: &Detection{}}
	d := NewRateLimitedDetector(inner, RateLimitConfig{RPS: 0.001, Burst: 1})

	_, err := d.Detect(context.Background(), DetectRequest{Text: "a"})
	require.NoError(t, err)
	_, err = d.Detect(context.Background(), DetectRequest{Text: "b"})
	require.ErrorIs(t, err, ErrDetectorUnavailable)
	assert.Equal(t, 1, inner.Calls())
}

func TestRateLimitedDetector_WaitHonoursContext(t *testing.T) {
	inner := &stubDetector{det: &Detection{}}
	d := NewRateLimitedDetector(inner, RateLimitConfig{RPS: 0.001, Burst: 1, Wait: true})

	_, err := d.Detect(context.Background(), DetectRequest{Text: "a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.Detect(ctx, DetectRequest{Text: "b"})
	require.Error(t, err)
	assert.Equal(t, 1, inner.Calls())
}

func TestRateLimitedDetector_ProcessorFailsOpen(t *testing.T) {
	d := NewRateLimitedDetector(keywordDetector{keyword: "x", category: "hate", score: 1}, RateLimitConfig{RPS: 0.001, Burst: 1})
	p, err := NewModerationProcessor(Config{}, d)
	require.NoError(t, err)

	_, err = p.ProcessInput(context.Background(),
		processor.NewInputArgs(p.Name(), "r", []types.Message{types.NewUserMessage("x")}))
	require.Error(t, err, "first call is within budget and blocks")

	out, err := p.ProcessInput(context.Background(),
		processor.NewInputArgs(p.Name(), "r", []types.Message{types.NewUserMessage("x")}))
	require.NoError(t, err, "limited call passes content through")
	assert.Len(t, out, 1)
}

func TestMultiDetector_Merge(t *testing.T) {
	a := &stubDetector{name: "a", det: &Detection{Scores: map[string]float64{"hate": 0.3, "violence": 0.9}, Reason: "ra"}}
	b := &stubDetector{name: "b", det: &Detection{Scores: map[string]float64{"hate": 0.6}, Spans: []Span{{Type: "email", Start: 0, End: 1}}}}
	m := NewMultiDetector(a, b)
	assert.Equal(t, "multi(a,b)", m.Name())

	det, err := m.Detect(context.Background(), DetectRequest{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, 0.6, det.Scores["hate"])
	assert.Equal(t, 0.9, det.Scores["violence"])
	assert.Len(t, det.Spans, 1)
	assert.Equal(t, "ra", det.Reason)
}

func TestMultiDetector_AnyErrorFails(t *testing.T) {
	m := NewMultiDetector(&stubDetector{det: &Detection{}}, &stubDetector{err: errDetectorDown})
	_, err := m.Detect(context.Background(), DetectRequest{Text: "x"})
	require.ErrorIs(t, err, errDetectorDown)
}

// fakeModeration 固定返回分数的审核提供者
type fakeModeration struct {
	scores map[string]float64
	inputs [][]string
}

func (f *fakeModeration) Name() string { return "fake-moderation" }

func (f *fakeModeration) Moderate(_ context.Context, req *moderation.ModerationRequest) (*moderation.ModerationResponse, error) {
	f.inputs = append(f.inputs, req.Input)
	return &moderation.ModerationResponse{Results: []moderation.ModerationResult{{Scores: f.scores}}}, nil
}

func TestModerationDetector(t *testing.T) {
	prov := &fakeModeration{scores: map[string]float64{moderation.CategoryHate: 0.91, moderation.CategorySexual: 0.7}}
	d := NewModerationDetector(prov, "omni-moderation-latest", moderation.CategoryHate)
	assert.Equal(t, "fake-moderation", d.Name())

	det, err := d.Detect(context.Background(), DetectRequest{Text: "now", Context: []string{"before "}})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{moderation.CategoryHate: 0.91}, det.Scores)
	assert.Equal(t, [][]string{{"before now"}}, prov.inputs)
}

func TestBreakerDetector_OpensAndFailsOpen(t *testing.T) {
	inner := &stubDetector{err: errors.New("moderation endpoint down")}
	d := NewBreakerDetector(inner, circuitbreaker.New("moderation", circuitbreaker.Config{Threshold: 2, ResetTimeout: time.Hour}, nil))
	assert.Equal(t, inner.Name(), d.Name())

	for i := 0; i < 2; i++ {
		_, err := d.Detect(context.Background(), DetectRequest{Text: "a"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDetectorUnavailable)
	}
	_, err := d.Detect(context.Background(), DetectRequest{Text: "a"})
	require.ErrorIs(t, err, ErrDetectorUnavailable)
	assert.Equal(t, 2, inner.Calls(), "open circuit short-circuits the call")

	p, err := NewModerationProcessor(Config{Strategy: StrategyBlock}, d)
	require.NoError(t, err)
	out, err := p.ProcessInput(context.Background(),
		processor.NewInputArgs(p.Name(), "r", []types.Message{types.NewUserMessage("anything")}))
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
