package normalize

import (
	"github.com/openai/openai-go/v3"

	"github.com/BaSui01/agentstream/llm"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// OpenAINormalizer 归一化 openai-go 的 ChatCompletionChunk。
// 工具调用按 index 累积：ID 与名称只在首个增量出现，后续增量由归一化器补全。
type OpenAINormalizer struct {
	asm *assembler
}

// NewOpenAINormalizer 创建 OpenAI 方言归一化器
func NewOpenAINormalizer() *OpenAINormalizer {
	return &OpenAINormalizer{asm: newAssembler()}
}

// Normalize 实现 Normalizer
func (n *OpenAINormalizer) Normalize(event openai.ChatCompletionChunk, runID string) (stream.Chunk, bool) {
	return primary(n.Expand(event, runID))
}

// Expand 实现 Expander
func (n *OpenAINormalizer) Expand(event openai.ChatCompletionChunk, runID string) []stream.Chunk {
	a := n.asm
	var out []stream.Chunk

	finishReason := ""
	for _, choice := range event.Choices {
		if choice.Index != 0 {
			continue
		}
		delta := choice.Delta
		if delta.Content != "" || delta.Refusal != "" || len(delta.ToolCalls) > 0 {
			out = append(out, a.ensureStep(runID, event.ID)...)
		}
		out = append(out, a.text(runID, delta.Content)...)
		out = append(out, a.text(runID, delta.Refusal)...)
		for _, tc := range delta.ToolCalls {
			out = append(out, a.toolDelta(runID, int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)...)
		}
		finishReason = choice.FinishReason
	}

	hasUsage := event.Usage.TotalTokens > 0 || event.Usage.PromptTokens > 0 || event.Usage.CompletionTokens > 0
	if hasUsage {
		a.addUsage(openAIUsage(event.Usage))
	}
	switch {
	case finishReason != "":
		a.pendingReason = mapOpenAIFinishReason(finishReason)
		if hasUsage {
			out = append(out, a.finishStep(runID, a.pendingReason)...)
		}
	case hasUsage && a.pendingReason != "":
		out = append(out, a.finishStep(runID, a.pendingReason)...)
	}
	return out
}

// Close 实现 Expander
func (n *OpenAINormalizer) Close(runID string) []stream.Chunk {
	return n.asm.close(runID)
}

func openAIUsage(u openai.CompletionUsage) types.Usage {
	return llm.ChatUsage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		ReasoningTokens:  int(u.CompletionTokensDetails.ReasoningTokens),
		CachedTokens:     int(u.PromptTokensDetails.CachedTokens),
	}.ToUsage()
}
