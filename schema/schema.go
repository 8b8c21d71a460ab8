package schema

import (
	"encoding/json"
	"fmt"
)

// Type JSON Schema 类型
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeNull    Type = "null"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
)

// Format 字符串格式约束
type Format string

const (
	FormatDateTime Format = "date-time"
	FormatEmail    Format = "email"
	FormatURI      Format = "uri"
	FormatUUID     Format = "uuid"
)

// JSONSchema JSON Schema 定义
type JSONSchema struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Type        Type   `json:"type,omitempty"`

	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *AdditionalProperties  `json:"additionalProperties,omitempty"`

	Items    *JSONSchema `json:"items,omitempty"`
	MinItems *int        `json:"minItems,omitempty"`
	MaxItems *int        `json:"maxItems,omitempty"`

	Enum []any `json:"enum,omitempty"`

	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Format    Format `json:"format,omitempty"`

	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	Default any `json:"default,omitempty"`

	AnyOf []*JSONSchema `json:"anyOf,omitempty"`
}

// AdditionalProperties 布尔值或 Schema
type AdditionalProperties struct {
	Allowed bool
	Schema  *JSONSchema
}

// MarshalJSON 实现 json.Marshaler
func (ap *AdditionalProperties) MarshalJSON() ([]byte, error) {
	if ap == nil {
		return []byte("null"), nil
	}
	if ap.Schema != nil {
		return json.Marshal(ap.Schema)
	}
	return json.Marshal(ap.Allowed)
}

// UnmarshalJSON 实现 json.Unmarshaler
func (ap *AdditionalProperties) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		ap.Allowed, ap.Schema = b, nil
		return nil
	}
	var s JSONSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("additionalProperties must be boolean or schema")
	}
	ap.Allowed, ap.Schema = true, &s
	return nil
}

// Object 创建对象 Schema
func Object() *JSONSchema {
	return &JSONSchema{Type: TypeObject, Properties: make(map[string]*JSONSchema)}
}

// Array 创建数组 Schema
func Array(items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: TypeArray, Items: items}
}

// String 创建字符串 Schema
func String() *JSONSchema { return &JSONSchema{Type: TypeString} }

// Number 创建数值 Schema
func Number() *JSONSchema { return &JSONSchema{Type: TypeNumber} }

// Integer 创建整数 Schema
func Integer() *JSONSchema { return &JSONSchema{Type: TypeInteger} }

// Boolean 创建布尔 Schema
func Boolean() *JSONSchema { return &JSONSchema{Type: TypeBoolean} }

// Enum 创建枚举 Schema
func Enum(values ...any) *JSONSchema { return &JSONSchema{Enum: values} }

// WithDescription 设置描述
func (s *JSONSchema) WithDescription(desc string) *JSONSchema {
	s.Description = desc
	return s
}

// WithRange 设置数值范围
func (s *JSONSchema) WithRange(min, max float64) *JSONSchema {
	s.Minimum, s.Maximum = &min, &max
	return s
}

// AddProperty 添加属性，required 为 true 时加入必填列表
func (s *JSONSchema) AddProperty(name string, prop *JSONSchema, required bool) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	if required {
		s.Required = append(s.Required, name)
	}
	return s
}

// Closed 禁止额外属性
func (s *JSONSchema) Closed() *JSONSchema {
	s.AdditionalProperties = &AdditionalProperties{Allowed: false}
	return s
}

// Raw 序列化为 json.RawMessage
func (s *JSONSchema) Raw() (json.RawMessage, error) {
	return json.Marshal(s)
}

// Parse 从 JSON 解析 Schema
func Parse(data []byte) (*JSONSchema, error) {
	var s JSONSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &s, nil
}
