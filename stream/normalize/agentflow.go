package normalize

import (
	"encoding/json"

	"github.com/BaSui01/agentstream/llm"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// AgentflowNormalizer 归一化 agentflow 线格式（llm.StreamChunk）
type AgentflowNormalizer struct {
	asm *assembler
}

// NewAgentflowNormalizer 创建 agentflow 方言归一化器
func NewAgentflowNormalizer() *AgentflowNormalizer {
	return &AgentflowNormalizer{asm: newAssembler()}
}

// Normalize 实现 Normalizer
func (n *AgentflowNormalizer) Normalize(event llm.StreamChunk, runID string) (stream.Chunk, bool) {
	return primary(n.Expand(event, runID))
}

// Expand 实现 Expander
func (n *AgentflowNormalizer) Expand(event llm.StreamChunk, runID string) []stream.Chunk {
	a := n.asm
	if event.Err != nil {
		code := types.ErrUpstreamError
		if event.Err.Code == llm.ErrUpstreamTimeout {
			code = types.ErrUpstreamTimeout
		}
		return []stream.Chunk{stream.Error(runID, types.NewError(code, event.Err.Message).
			WithProvider(event.Err.Provider).
			WithRetryable(event.Err.Retryable))}
	}

	var out []stream.Chunk
	if event.Delta.ReasoningContent != "" || event.Delta.Content != "" || len(event.Delta.ToolCalls) > 0 {
		out = append(out, a.ensureStep(runID, event.ID)...)
	}
	out = append(out, a.reasoning(runID, event.Delta.ReasoningContent)...)
	out = append(out, a.text(runID, event.Delta.Content)...)
	for _, tc := range event.Delta.ToolCalls {
		out = append(out, a.toolDelta(runID, -1, tc.ID, tc.Name, argsText(tc.Arguments))...)
	}

	if event.Usage != nil {
		a.addUsage(event.Usage.ToUsage())
	}
	if event.FinishReason != "" {
		a.pendingReason = mapOpenAIFinishReason(event.FinishReason)
		if event.Usage != nil {
			out = append(out, a.finishStep(runID, a.pendingReason)...)
		}
	} else if event.Usage != nil && a.pendingReason != "" {
		out = append(out, a.finishStep(runID, a.pendingReason)...)
	}
	return out
}

// Close 实现 Expander
func (n *AgentflowNormalizer) Close(runID string) []stream.Chunk {
	return n.asm.close(runID)
}

// mapOpenAIFinishReason 映射 OpenAI 风格的结束原因
func mapOpenAIFinishReason(reason string) stream.FinishReason {
	switch reason {
	case "stop":
		return stream.FinishStop
	case "length":
		return stream.FinishLength
	case "tool_calls", "function_call":
		return stream.FinishToolCalls
	case "content_filter":
		return stream.FinishContentFilter
	case "error":
		return stream.FinishError
	case "":
		return stream.FinishUnknown
	default:
		return stream.FinishOther
	}
}

// argsText 返回参数片段文本；JSONL 抓包里片段以 JSON 字符串编码
func argsText(raw json.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
