// Package types provides core types shared across the agentstream pipeline.
// This package has ZERO dependencies on other agentstream packages.
package types

import (
	"encoding/json"
	"maps"
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of a message part.
type PartType string

const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
	PartFile       PartType = "file"
)

// MetadataStructuredOutput is the metadata key carrying a coerced structured object.
const MetadataStructuredOutput = "structuredOutput"

// ToolCall represents a tool invocation request from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult represents the outcome of a tool invocation.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// FileContent is an inline file attached to a message.
type FileContent struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64,omitempty"`
}

// Part is one typed segment of a message.
type Part struct {
	Type       PartType     `json:"type"`
	Text       string       `json:"text,omitempty"`
	ToolCall   *ToolCall    `json:"tool_call,omitempty"`
	ToolResult *ToolResult  `json:"tool_result,omitempty"`
	File       *FileContent `json:"file,omitempty"`
}

// TextPart creates a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// Message represents a conversation message.
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// NewMessage creates a new message with a single text part.
func NewMessage(role Role, text string) Message {
	return Message{
		Role:      role,
		Parts:     []Part{TextPart(text)},
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(text string) Message {
	return NewMessage(RoleSystem, text)
}

// NewUserMessage creates a new user message.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, text)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, text)
}

// Text returns the concatenation of all text parts.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// HasText reports whether the message carries at least one non-empty text part.
func (m Message) HasText() bool {
	for _, p := range m.Parts {
		if p.Type == PartText && p.Text != "" {
			return true
		}
	}
	return false
}

// WithText replaces every text part with a single part holding text.
// Non-text parts keep their relative order.
func (m Message) WithText(text string) Message {
	out := m.Clone()
	parts := make([]Part, 0, len(out.Parts))
	replaced := false
	for _, p := range out.Parts {
		if p.Type != PartText {
			parts = append(parts, p)
			continue
		}
		if !replaced {
			parts = append(parts, TextPart(text))
			replaced = true
		}
	}
	if !replaced {
		parts = append([]Part{TextPart(text)}, parts...)
	}
	out.Parts = parts
	return out
}

// WithMetadata returns a copy of the message with key set in its metadata.
func (m Message) WithMetadata(key string, value any) Message {
	out := m.Clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]any)
	}
	out.Metadata[key] = value
	return out
}

// Clone returns a copy whose parts slice and metadata map are not shared.
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	if m.Metadata != nil {
		out.Metadata = maps.Clone(m.Metadata)
	}
	return out
}

// CloneMessages deep-copies a message list so that hooks cannot alias the caller's slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
