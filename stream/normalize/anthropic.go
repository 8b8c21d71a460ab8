package normalize

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

type anthropicBlock string

const (
	blockText     anthropicBlock = "text"
	blockThinking anthropicBlock = "thinking"
	blockToolUse  anthropicBlock = "tool_use"
)

// AnthropicNormalizer 归一化 anthropic-sdk-go 的流式事件。
// ping 与未知事件被丢弃。
type AnthropicNormalizer struct {
	asm        *assembler
	blocks     map[int64]anthropicBlock
	signature  string
	inputUsage types.Usage
}

// NewAnthropicNormalizer 创建 Anthropic 方言归一化器
func NewAnthropicNormalizer() *AnthropicNormalizer {
	return &AnthropicNormalizer{asm: newAssembler(), blocks: make(map[int64]anthropicBlock)}
}

// Normalize 实现 Normalizer
func (n *AnthropicNormalizer) Normalize(event anthropic.MessageStreamEventUnion, runID string) (stream.Chunk, bool) {
	return primary(n.Expand(event, runID))
}

// Expand 实现 Expander
func (n *AnthropicNormalizer) Expand(event anthropic.MessageStreamEventUnion, runID string) []stream.Chunk {
	a := n.asm
	switch e := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		n.blocks = make(map[int64]anthropicBlock)
		n.inputUsage = types.Usage{
			InputTokens:       int(e.Message.Usage.InputTokens),
			CachedInputTokens: int(e.Message.Usage.CacheReadInputTokens),
		}
		return a.ensureStep(runID, e.Message.ID)

	case anthropic.ContentBlockStartEvent:
		out := a.ensureStep(runID, "")
		switch e.ContentBlock.Type {
		case "text":
			n.blocks[e.Index] = blockText
			out = append(out, a.closeReasoning(runID, "")...)
			if a.textID == "" {
				a.textID = a.nextBlockID("text")
				out = append(out, stream.TextStart(runID, a.textID))
			}
			out = append(out, a.text(runID, e.ContentBlock.Text)...)
		case "thinking":
			n.blocks[e.Index] = blockThinking
			n.signature = ""
			out = append(out, a.closeText(runID)...)
			if a.reasoningID == "" {
				a.reasoningID = a.nextBlockID("reasoning")
				out = append(out, stream.ReasoningStart(runID, a.reasoningID))
			}
			out = append(out, a.reasoning(runID, e.ContentBlock.Thinking)...)
		case "tool_use", "server_tool_use":
			n.blocks[e.Index] = blockToolUse
			out = append(out, a.toolDelta(runID, int(e.Index), e.ContentBlock.ID, e.ContentBlock.Name, "")...)
		}
		return out

	case anthropic.ContentBlockDeltaEvent:
		switch e.Delta.Type {
		case "text_delta":
			return a.text(runID, e.Delta.Text)
		case "thinking_delta":
			return a.reasoning(runID, e.Delta.Thinking)
		case "signature_delta":
			n.signature += e.Delta.Signature
			return nil
		case "input_json_delta":
			if e.Delta.PartialJSON == "" {
				return nil
			}
			return a.toolDelta(runID, int(e.Index), "", "", e.Delta.PartialJSON)
		}
		return nil

	case anthropic.ContentBlockStopEvent:
		kind := n.blocks[e.Index]
		delete(n.blocks, e.Index)
		switch kind {
		case blockText:
			return a.closeText(runID)
		case blockThinking:
			sig := n.signature
			n.signature = ""
			return a.closeReasoning(runID, sig)
		case blockToolUse:
			return nil
		}
		return nil

	case anthropic.MessageDeltaEvent:
		u := n.inputUsage
		u.OutputTokens = int(e.Usage.OutputTokens)
		if e.Usage.InputTokens > 0 {
			u.InputTokens = int(e.Usage.InputTokens)
		}
		a.addUsage(u)
		if e.Delta.StopReason == "" {
			return nil
		}
		reason := mapAnthropicStopReason(e.Delta.StopReason)
		a.pendingReason = reason
		// 工具回合只结束步骤，运行在后续步骤或 Close 时结束
		return a.finishStep(runID, reason)

	case anthropic.MessageStopEvent:
		if a.stepOpen {
			return a.finishStep(runID, stream.FinishStop)
		}
		return nil

	default:
		return nil
	}
}

// Close 实现 Expander
func (n *AnthropicNormalizer) Close(runID string) []stream.Chunk {
	return n.asm.close(runID)
}

func mapAnthropicStopReason(reason anthropic.StopReason) stream.FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return stream.FinishStop
	case anthropic.StopReasonMaxTokens:
		return stream.FinishLength
	case anthropic.StopReasonToolUse:
		return stream.FinishToolCalls
	case anthropic.StopReasonRefusal:
		return stream.FinishContentFilter
	default:
		return stream.FinishOther
	}
}
