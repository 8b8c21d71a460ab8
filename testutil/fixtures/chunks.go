// Package fixtures 提供测试用的预置 Chunk 序列与对话样例。
package fixtures

import (
	"encoding/json"

	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// DefaultUsage 单步默认用量
var DefaultUsage = types.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}

// TextRun 单步纯文本运行：start, step-start, text-start, 各 delta, text-end, step-finish, finish
func TextRun(runID string, deltas ...string) []stream.Chunk {
	out := []stream.Chunk{stream.Start(runID, "msg-1")}
	out = append(out, TextStep(runID, "t1", stream.FinishStop, DefaultUsage, deltas...)...)
	return append(out, Finish(runID, stream.FinishStop, DefaultUsage))
}

// TextStep 一个文本步骤，不含 start 与 finish
func TextStep(runID, textID string, reason stream.FinishReason, usage types.Usage, deltas ...string) []stream.Chunk {
	out := []stream.Chunk{
		stream.StepStart(runID, stream.StepStartPayload{MessageID: "msg-1"}),
		stream.TextStart(runID, textID),
	}
	for _, d := range deltas {
		out = append(out, stream.TextDelta(runID, textID, d))
	}
	return append(out,
		stream.TextEnd(runID, textID),
		stream.StepFinish(runID, stream.StepFinishPayload{MessageID: "msg-1", FinishReason: reason, Usage: usage}),
	)
}

// ToolRun 两步运行：第一步调用工具 get_weather，第二步输出文本
func ToolRun(runID string) []stream.Chunk {
	usage := DefaultUsage
	out := []stream.Chunk{
		stream.Start(runID, "msg-1"),
		stream.StepStart(runID, stream.StepStartPayload{MessageID: "msg-1"}),
		stream.TextStart(runID, "t1"),
		stream.TextDelta(runID, "t1", "Let me check. "),
		stream.TextEnd(runID, "t1"),
		stream.ToolCall(runID, "call-1", "get_weather", json.RawMessage(`{"city":"Paris"}`)),
		stream.ToolResult(runID, "call-1", "get_weather", json.RawMessage(`{"temp":21}`), false),
		stream.StepFinish(runID, stream.StepFinishPayload{MessageID: "msg-1", FinishReason: stream.FinishToolCalls, Usage: usage}),
	}
	out = append(out, TextStep(runID, "t2", stream.FinishStop, usage, "It is ", "21 degrees.")...)
	return append(out, Finish(runID, stream.FinishStop, types.Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30}))
}

// ReasoningRun 推理后输出文本
func ReasoningRun(runID string) []stream.Chunk {
	return []stream.Chunk{
		stream.Start(runID, "msg-1"),
		stream.StepStart(runID, stream.StepStartPayload{MessageID: "msg-1"}),
		stream.ReasoningStart(runID, "r1"),
		stream.ReasoningDelta(runID, "r1", "thinking "),
		stream.ReasoningDelta(runID, "r1", "hard"),
		stream.ReasoningEnd(runID, "r1"),
		stream.TextStart(runID, "t1"),
		stream.TextDelta(runID, "t1", "42"),
		stream.TextEnd(runID, "t1"),
		stream.StepFinish(runID, stream.StepFinishPayload{MessageID: "msg-1", FinishReason: stream.FinishStop, Usage: DefaultUsage}),
		Finish(runID, stream.FinishStop, DefaultUsage),
	}
}

// Finish 构造 finish Chunk
func Finish(runID string, reason stream.FinishReason, usage types.Usage) stream.Chunk {
	return stream.Finish(runID, stream.FinishPayload{StepResult: stream.StepResult{Reason: reason}, Usage: usage})
}

// Conversation 一轮用户与助手对话
func Conversation(user, assistant string) []types.Message {
	return []types.Message{
		types.NewUserMessage(user),
		types.NewAssistantMessage(assistant),
	}
}
