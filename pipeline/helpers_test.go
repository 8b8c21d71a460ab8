package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentstream/config"
	"github.com/BaSui01/agentstream/llm/moderation"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/types"
)

// keywordModeration 文本包含关键字时给出高分
type keywordModeration struct {
	keyword  string
	category string

	mu    sync.Mutex
	calls int
}

func (k *keywordModeration) Name() string { return "keyword-moderation" }

func (k *keywordModeration) Moderate(_ context.Context, req *moderation.ModerationRequest) (*moderation.ModerationResponse, error) {
	k.mu.Lock()
	k.calls++
	k.mu.Unlock()

	resp := &moderation.ModerationResponse{Provider: k.Name()}
	for _, in := range req.Input {
		score := 0.01
		if strings.Contains(in, k.keyword) {
			score = 0.97
		}
		resp.Results = append(resp.Results, moderation.ModerationResult{
			Flagged:    score > 0.5,
			Categories: map[string]bool{k.category: score > 0.5},
			Scores:     map[string]float64{k.category: score},
		})
	}
	return resp, nil
}

func (k *keywordModeration) Calls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls
}

func loadConfig(t *testing.T, yamlText string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	require.NoError(t, config.Parse([]byte(yamlText), cfg))
	require.NoError(t, cfg.Validate())
	return cfg
}

// agentflowJSONL 把文本增量编码为 agentflow 线格式
func agentflowJSONL(deltas ...string) string {
	var b strings.Builder
	for i, d := range deltas {
		b.WriteString(`{"id":"m1","delta":{"role":"assistant","content":`)
		b.WriteString(quote(d))
		b.WriteString(`}`)
		if i == len(deltas)-1 {
			b.WriteString(`,"finish_reason":"stop","usage":{"prompt_tokens":3,"completion_tokens":4}`)
		}
		b.WriteString("}\n")
	}
	return b.String()
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

type noopProcessor struct{ name string }

func (n noopProcessor) Name() string { return n.name }

func (n noopProcessor) ProcessOutputResult(_ context.Context, args processor.ResultArgs) ([]types.Message, error) {
	return args.Messages, nil
}
