package stream

import (
	"encoding/json"
	"errors"

	"github.com/BaSui01/agentstream/types"
)

// 以下构造函数生成 From=AGENT 的 Chunk

func Start(runID, messageID string) Chunk {
	return New(runID, FromAgent, StartPayload{MessageID: messageID})
}

func StepStart(runID string, p StepStartPayload) Chunk {
	return New(runID, FromAgent, p)
}

func TextStart(runID, id string) Chunk {
	return New(runID, FromAgent, TextStartPayload{ID: id})
}

func TextDelta(runID, id, text string) Chunk {
	return New(runID, FromAgent, TextDeltaPayload{ID: id, Text: text})
}

func TextEnd(runID, id string) Chunk {
	return New(runID, FromAgent, TextEndPayload{ID: id})
}

func ReasoningStart(runID, id string) Chunk {
	return New(runID, FromAgent, ReasoningStartPayload{ID: id})
}

func ReasoningDelta(runID, id, text string) Chunk {
	return New(runID, FromAgent, ReasoningDeltaPayload{ID: id, Text: text})
}

func ReasoningEnd(runID, id string) Chunk {
	return New(runID, FromAgent, ReasoningEndPayload{ID: id})
}

func Source(runID string, p SourcePayload) Chunk {
	return New(runID, FromAgent, p)
}

func File(runID string, p FilePayload) Chunk {
	return New(runID, FromAgent, p)
}

func ToolCall(runID, toolCallID, toolName string, args json.RawMessage) Chunk {
	return New(runID, FromAgent, ToolCallPayload{ToolCallID: toolCallID, ToolName: toolName, Args: args})
}

func ToolCallDelta(runID, toolCallID, toolName, argsDelta string) Chunk {
	return New(runID, FromAgent, ToolCallDeltaPayload{ToolCallID: toolCallID, ToolName: toolName, ArgsTextDelta: argsDelta})
}

func ToolResult(runID, toolCallID, toolName string, result json.RawMessage, isError bool) Chunk {
	return New(runID, FromAgent, ToolResultPayload{ToolCallID: toolCallID, ToolName: toolName, Result: result, IsError: isError})
}

func ToolError(runID, toolCallID, toolName, msg string) Chunk {
	return New(runID, FromAgent, ToolErrorPayload{ToolCallID: toolCallID, ToolName: toolName, Error: msg})
}

func StepFinish(runID string, p StepFinishPayload) Chunk {
	return New(runID, FromAgent, p)
}

func Finish(runID string, p FinishPayload) Chunk {
	return New(runID, FromAgent, p)
}

// Error 将上游错误包装为 error Chunk，保留 *types.Error 的错误码
func Error(runID string, err error) Chunk {
	p := ErrorPayload{Code: types.ErrUpstreamError}
	if err != nil {
		p.Message = err.Error()
		var te *types.Error
		if errors.As(err, &te) {
			p.Code = te.Code
			p.Message = te.Message
			if te.Cause != nil {
				p.Message += ": " + te.Cause.Error()
			}
		}
	}
	return New(runID, FromAgent, p)
}

func Raw(runID string, value json.RawMessage) Chunk {
	return New(runID, FromAgent, RawPayload{Value: value})
}

func Object(runID string, object any) Chunk {
	return New(runID, FromAgent, ObjectPayload{Object: object})
}

// Tripwire 由处理器链在 abort 时合成
func Tripwire(runID, reason, processor string) Chunk {
	return New(runID, FromSystem, TripwirePayload{Reason: reason, Processor: processor})
}

func Abort(runID, reason string) Chunk {
	return New(runID, FromSystem, AbortPayload{Reason: reason})
}
