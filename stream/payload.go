package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/agentstream/types"
)

// Payload Chunk 载荷（封闭接口，只能由本包实现）
type Payload interface {
	ChunkType() ChunkType
	sealed()
}

// FinishReason 结束原因
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishContentFilter FinishReason = "content-filter"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
	FinishUnknown       FinishReason = "unknown"
)

// ResponseMetadata 模型响应元信息
type ResponseMetadata struct {
	ID        string    `json:"id,omitempty"`
	ModelID   string    `json:"modelId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// StepResult 描述一个步骤的结束状态
type StepResult struct {
	Reason      FinishReason `json:"reason"`
	Warnings    []string     `json:"warnings,omitempty"`
	IsContinued bool         `json:"isContinued,omitempty"`
}

type StartPayload struct {
	MessageID string `json:"messageId,omitempty"`
}

type StepStartPayload struct {
	MessageID string         `json:"messageId,omitempty"`
	Request   map[string]any `json:"request,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
}

type TextStartPayload struct {
	ID               string         `json:"id"`
	ProviderMetadata map[string]any `json:"providerMetadata,omitempty"`
}

type TextDeltaPayload struct {
	ID               string         `json:"id"`
	Text             string         `json:"text"`
	ProviderMetadata map[string]any `json:"providerMetadata,omitempty"`
}

type TextEndPayload struct {
	ID               string         `json:"id"`
	ProviderMetadata map[string]any `json:"providerMetadata,omitempty"`
}

type ReasoningStartPayload struct {
	ID               string         `json:"id"`
	ProviderMetadata map[string]any `json:"providerMetadata,omitempty"`
}

type ReasoningDeltaPayload struct {
	ID               string         `json:"id"`
	Text             string         `json:"text"`
	ProviderMetadata map[string]any `json:"providerMetadata,omitempty"`
}

type ReasoningEndPayload struct {
	ID               string         `json:"id"`
	Signature        string         `json:"signature,omitempty"`
	ProviderMetadata map[string]any `json:"providerMetadata,omitempty"`
}

// SourcePayload 引用来源（检索、网页搜索）
type SourcePayload struct {
	ID         string `json:"id"`
	SourceType string `json:"sourceType"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
}

type FilePayload struct {
	MediaType string `json:"mediaType"`
	Base64    string `json:"base64"`
}

type ToolCallPayload struct {
	ToolCallID       string          `json:"toolCallId"`
	ToolName         string          `json:"toolName"`
	Args             json.RawMessage `json:"args,omitempty"`
	ProviderExecuted bool            `json:"providerExecuted,omitempty"`
}

// ToolCallDeltaPayload 工具参数增量；ToolName 可能由归一化器补全
type ToolCallDeltaPayload struct {
	ToolCallID    string `json:"toolCallId"`
	ToolName      string `json:"toolName,omitempty"`
	ArgsTextDelta string `json:"argsTextDelta"`
}

type ToolResultPayload struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}

type ToolErrorPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Error      string `json:"error"`
}

type StepFinishPayload struct {
	MessageID    string           `json:"messageId,omitempty"`
	FinishReason FinishReason     `json:"finishReason"`
	Usage        types.Usage      `json:"usage"`
	Warnings     []string         `json:"warnings,omitempty"`
	Response     ResponseMetadata `json:"response,omitempty"`
	Request      map[string]any   `json:"request,omitempty"`
	IsContinued  bool             `json:"isContinued,omitempty"`
}

type FinishPayload struct {
	StepResult StepResult      `json:"stepResult"`
	Usage      types.Usage     `json:"usage"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Messages   []types.Message `json:"messages,omitempty"`
}

// ErrorPayload 上游传输错误
type ErrorPayload struct {
	Code    types.ErrorCode `json:"code,omitempty"`
	Message string          `json:"message"`
}

// Err 将载荷转换为 *types.Error
func (p ErrorPayload) Err() error {
	code := p.Code
	if code == "" {
		code = types.ErrUpstreamError
	}
	return types.NewError(code, p.Message)
}

type RawPayload struct {
	Value json.RawMessage `json:"value"`
}

// ObjectPayload 结构化对象（部分或完整）
type ObjectPayload struct {
	Object any `json:"object"`
}

type TripwirePayload struct {
	Reason    string `json:"reason"`
	Processor string `json:"processor,omitempty"`
}

type AbortPayload struct {
	Reason string `json:"reason,omitempty"`
}

func (StartPayload) ChunkType() ChunkType          { return TypeStart }
func (StepStartPayload) ChunkType() ChunkType      { return TypeStepStart }
func (TextStartPayload) ChunkType() ChunkType      { return TypeTextStart }
func (TextDeltaPayload) ChunkType() ChunkType      { return TypeTextDelta }
func (TextEndPayload) ChunkType() ChunkType        { return TypeTextEnd }
func (ReasoningStartPayload) ChunkType() ChunkType { return TypeReasoningStart }
func (ReasoningDeltaPayload) ChunkType() ChunkType { return TypeReasoningDelta }
func (ReasoningEndPayload) ChunkType() ChunkType   { return TypeReasoningEnd }
func (SourcePayload) ChunkType() ChunkType         { return TypeSource }
func (FilePayload) ChunkType() ChunkType           { return TypeFile }
func (ToolCallPayload) ChunkType() ChunkType       { return TypeToolCall }
func (ToolCallDeltaPayload) ChunkType() ChunkType  { return TypeToolCallDelta }
func (ToolResultPayload) ChunkType() ChunkType     { return TypeToolResult }
func (ToolErrorPayload) ChunkType() ChunkType      { return TypeToolError }
func (StepFinishPayload) ChunkType() ChunkType     { return TypeStepFinish }
func (FinishPayload) ChunkType() ChunkType         { return TypeFinish }
func (ErrorPayload) ChunkType() ChunkType          { return TypeError }
func (RawPayload) ChunkType() ChunkType            { return TypeRaw }
func (ObjectPayload) ChunkType() ChunkType         { return TypeObject }
func (TripwirePayload) ChunkType() ChunkType       { return TypeTripwire }
func (AbortPayload) ChunkType() ChunkType          { return TypeAbort }

func (StartPayload) sealed()          {}
func (StepStartPayload) sealed()      {}
func (TextStartPayload) sealed()      {}
func (TextDeltaPayload) sealed()      {}
func (TextEndPayload) sealed()        {}
func (ReasoningStartPayload) sealed() {}
func (ReasoningDeltaPayload) sealed() {}
func (ReasoningEndPayload) sealed()   {}
func (SourcePayload) sealed()         {}
func (FilePayload) sealed()           {}
func (ToolCallPayload) sealed()       {}
func (ToolCallDeltaPayload) sealed()  {}
func (ToolResultPayload) sealed()     {}
func (ToolErrorPayload) sealed()      {}
func (StepFinishPayload) sealed()     {}
func (FinishPayload) sealed()         {}
func (ErrorPayload) sealed()          {}
func (RawPayload) sealed()            {}
func (ObjectPayload) sealed()         {}
func (TripwirePayload) sealed()       {}
func (AbortPayload) sealed()          {}

// decodePayload 按 t 解码载荷
func decodePayload(t ChunkType, raw json.RawMessage) (Payload, error) {
	switch t {
	case TypeStart:
		return decodeAs[StartPayload](raw)
	case TypeStepStart:
		return decodeAs[StepStartPayload](raw)
	case TypeTextStart:
		return decodeAs[TextStartPayload](raw)
	case TypeTextDelta:
		return decodeAs[TextDeltaPayload](raw)
	case TypeTextEnd:
		return decodeAs[TextEndPayload](raw)
	case TypeReasoningStart:
		return decodeAs[ReasoningStartPayload](raw)
	case TypeReasoningDelta:
		return decodeAs[ReasoningDeltaPayload](raw)
	case TypeReasoningEnd:
		return decodeAs[ReasoningEndPayload](raw)
	case TypeSource:
		return decodeAs[SourcePayload](raw)
	case TypeFile:
		return decodeAs[FilePayload](raw)
	case TypeToolCall:
		return decodeAs[ToolCallPayload](raw)
	case TypeToolCallDelta:
		return decodeAs[ToolCallDeltaPayload](raw)
	case TypeToolResult:
		return decodeAs[ToolResultPayload](raw)
	case TypeToolError:
		return decodeAs[ToolErrorPayload](raw)
	case TypeStepFinish:
		return decodeAs[StepFinishPayload](raw)
	case TypeFinish:
		return decodeAs[FinishPayload](raw)
	case TypeError:
		return decodeAs[ErrorPayload](raw)
	case TypeRaw:
		return decodeAs[RawPayload](raw)
	case TypeObject:
		return decodeAs[ObjectPayload](raw)
	case TypeTripwire:
		return decodeAs[TripwirePayload](raw)
	case TypeAbort:
		return decodeAs[AbortPayload](raw)
	default:
		return nil, fmt.Errorf("unknown chunk type %q", t)
	}
}

func decodeAs[P Payload](raw json.RawMessage) (Payload, error) {
	var p P
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}
