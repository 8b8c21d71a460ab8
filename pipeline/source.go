package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"

	"github.com/BaSui01/agentstream/llm"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/stream/normalize"
)

// NormalizeJSONL 按方言读取 JSONL 事件流（每行一个 provider 原生事件），
// 输出规范 Chunk 通道
func NormalizeJSONL(ctx context.Context, dialect normalize.Dialect, r io.Reader, runID string, buffer int) (<-chan stream.Chunk, error) {
	switch dialect {
	case normalize.DialectAgentflow, "":
		return normalize.Pipe(ctx, normalize.ReadJSONL[llm.StreamChunk](r), normalize.NewAgentflowNormalizer(), runID, buffer), nil
	case normalize.DialectOpenAI:
		return normalize.Pipe(ctx, normalize.ReadJSONL[openai.ChatCompletionChunk](r), normalize.NewOpenAINormalizer(), runID, buffer), nil
	case normalize.DialectAnthropic:
		return normalize.Pipe(ctx, normalize.ReadJSONL[anthropic.MessageStreamEventUnion](r), normalize.NewAnthropicNormalizer(), runID, buffer), nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
}
