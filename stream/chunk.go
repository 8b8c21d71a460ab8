package stream

import (
	"fmt"
)

// From 标识 Chunk 的来源
type From string

const (
	FromAgent    From = "AGENT"
	FromUser     From = "USER"
	FromSystem   From = "SYSTEM"
	FromWorkflow From = "WORKFLOW"
)

// ChunkType 规范事件类型（封闭集合）
type ChunkType string

const (
	TypeStart          ChunkType = "start"
	TypeStepStart      ChunkType = "step-start"
	TypeTextStart      ChunkType = "text-start"
	TypeTextDelta      ChunkType = "text-delta"
	TypeTextEnd        ChunkType = "text-end"
	TypeReasoningStart ChunkType = "reasoning-start"
	TypeReasoningDelta ChunkType = "reasoning-delta"
	TypeReasoningEnd   ChunkType = "reasoning-end"
	TypeSource         ChunkType = "source"
	TypeFile           ChunkType = "file"
	TypeToolCall       ChunkType = "tool-call"
	TypeToolCallDelta  ChunkType = "tool-call-delta"
	TypeToolResult     ChunkType = "tool-result"
	TypeToolError      ChunkType = "tool-error"
	TypeStepFinish     ChunkType = "step-finish"
	TypeFinish         ChunkType = "finish"
	TypeError          ChunkType = "error"
	TypeRaw            ChunkType = "raw"
	TypeObject         ChunkType = "object"
	TypeTripwire       ChunkType = "tripwire"
	TypeAbort          ChunkType = "abort"
)

// AllTypes 返回全部 ChunkType，顺序固定
func AllTypes() []ChunkType {
	return []ChunkType{
		TypeStart, TypeStepStart,
		TypeTextStart, TypeTextDelta, TypeTextEnd,
		TypeReasoningStart, TypeReasoningDelta, TypeReasoningEnd,
		TypeSource, TypeFile,
		TypeToolCall, TypeToolCallDelta, TypeToolResult, TypeToolError,
		TypeStepFinish, TypeFinish, TypeError, TypeRaw, TypeObject,
		TypeTripwire, TypeAbort,
	}
}

// Valid 报告 t 是否属于封闭集合
func (t ChunkType) Valid() bool {
	_, err := decodePayload(t, nil)
	return err == nil
}

// Chunk 规范流中的一个事件。
// Chunk 以值传递，发出后不再修改。
type Chunk struct {
	RunID   string
	From    From
	Type    ChunkType
	Payload Payload
}

// New 用载荷构造 Chunk，Type 取自载荷
func New(runID string, from From, payload Payload) Chunk {
	return Chunk{
		RunID:   runID,
		From:    from,
		Type:    payload.ChunkType(),
		Payload: payload,
	}
}

// Validate 检查 Type 与 Payload 是否一致
func (c Chunk) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("unknown chunk type %q", c.Type)
	}
	if c.Payload == nil {
		return fmt.Errorf("chunk %q has no payload", c.Type)
	}
	if got := c.Payload.ChunkType(); got != c.Type {
		return fmt.Errorf("chunk type %q carries %q payload", c.Type, got)
	}
	return nil
}

// WithPayload 返回替换载荷后的副本，Type 随载荷更新
func (c Chunk) WithPayload(p Payload) Chunk {
	c.Payload = p
	c.Type = p.ChunkType()
	return c
}

// WithFrom 返回替换来源后的副本
func (c Chunk) WithFrom(from From) Chunk {
	c.From = from
	return c
}

// Text 返回 text-delta 的文本，其他类型返回空串
func (c Chunk) Text() string {
	if p, ok := PayloadAs[TextDeltaPayload](c); ok {
		return p.Text
	}
	return ""
}

// WithText 返回替换文本后的 text-delta 副本，非 text-delta 原样返回
func (c Chunk) WithText(text string) Chunk {
	p, ok := PayloadAs[TextDeltaPayload](c)
	if !ok {
		return c
	}
	p.Text = text
	return c.WithPayload(p)
}

// IsTerminal 报告该 Chunk 是否结束运行
func (c Chunk) IsTerminal() bool {
	switch c.Type {
	case TypeError, TypeTripwire, TypeAbort:
		return true
	default:
		return false
	}
}

// PayloadAs 按具体类型读取载荷
func PayloadAs[P Payload](c Chunk) (P, bool) {
	p, ok := c.Payload.(P)
	if !ok || c.Type != p.ChunkType() {
		var zero P
		return zero, false
	}
	return p, true
}
