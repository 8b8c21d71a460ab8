package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentstream/types"
)

// 统一的 LLM 错误码
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"
	ErrContentFiltered ErrorCode = "LLM_CONTENT_FILTERED"
	ErrUpstreamTimeout ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"
	ErrModelOverloaded ErrorCode = "LLM_MODEL_OVERLOADED"
	ErrNoChoices       ErrorCode = "LLM_NO_CHOICES"
)

// Error 上游错误（流式响应中通过 StreamChunk.Err 传递）
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// ToolCall 模型请求的工具调用
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message 传输层消息。流式响应中作为 delta 使用。
type Message struct {
	Role             types.Role `json:"role"`
	Content          string     `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string     `json:"tool_call_id,omitempty"`
	Name             string     `json:"name,omitempty"`
}

// ResponseFormatType 输出格式类型
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat 约束模型输出的格式
type ResponseFormat struct {
	Type   ResponseFormatType `json:"type"`
	Name   string             `json:"name,omitempty"`
	Schema json.RawMessage    `json:"schema,omitempty"`
	Strict bool               `json:"strict,omitempty"`
}

type ChatRequest struct {
	TraceID        string            `json:"trace_id,omitempty"`
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float32           `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat   `json:"response_format,omitempty"`
	Timeout        time.Duration     `json:"timeout,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	ReasoningTokens  int `json:"reasoning_tokens,omitempty"`
	CachedTokens     int `json:"cached_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ToUsage 转换为流水线 Usage，TotalTokens 重新计算。
// CompletionTokens 已包含推理 token，OutputTokens 只保留可见输出部分。
func (u ChatUsage) ToUsage() types.Usage {
	output := u.CompletionTokens - u.ReasoningTokens
	if output < 0 {
		output = 0
	}
	out := types.Usage{
		InputTokens:       u.PromptTokens,
		OutputTokens:      output,
		ReasoningTokens:   u.ReasoningTokens,
		CachedInputTokens: u.CachedTokens,
	}
	out.Recompute()
	return out
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// FirstChoice 安全返回第一个 choice
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, &Error{Code: ErrNoChoices, Message: "empty choices in ChatResponse", Provider: resp.Provider}
	}
	return resp.Choices[0], nil
}

// StreamChunk agentflow 线格式的流式增量
type StreamChunk struct {
	ID           string     `json:"id,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Index        int        `json:"index,omitempty"`
	Delta        Message    `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *ChatUsage `json:"usage,omitempty"` // 最终 chunk 可带 usage
	Err          *Error     `json:"error,omitempty"`
}

// Provider 模型传输层接口。
// 流水线只通过该接口发起二级调用（结构化抽取、检测模型）。
type Provider interface {
	// Completion 发起同步聊天请求
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream 发起流式聊天请求，返回增量通道；通道关闭表示结束
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

// FromTypesMessages 将流水线消息转换为传输层消息（只保留文本与工具调用）
func FromTypesMessages(msgs []types.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		lm := Message{Role: m.Role}
		var sb strings.Builder
		for _, p := range m.Parts {
			switch p.Type {
			case types.PartText:
				sb.WriteString(p.Text)
			case types.PartReasoning:
				lm.ReasoningContent += p.Text
			case types.PartToolCall:
				if p.ToolCall != nil {
					lm.ToolCalls = append(lm.ToolCalls, ToolCall{ID: p.ToolCall.ID, Name: p.ToolCall.Name, Arguments: p.ToolCall.Arguments})
				}
			case types.PartToolResult:
				if p.ToolResult != nil {
					lm.ToolCallID = p.ToolResult.ToolCallID
					lm.Name = p.ToolResult.Name
					sb.Write(p.ToolResult.Result)
				}
			case types.PartFile:
			}
		}
		lm.Content = sb.String()
		out = append(out, lm)
	}
	return out
}
