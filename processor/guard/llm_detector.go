package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/agentstream/llm"
	"github.com/BaSui01/agentstream/llm/moderation"
	"github.com/BaSui01/agentstream/schema"
	"github.com/BaSui01/agentstream/types"
)

// 预置检测指令
const (
	ModerationInstructions = "You are a content moderation classifier. Score how strongly the content belongs to each category."
	PIIInstructions        = "You detect personally identifiable information. Report every occurrence with its exact text and byte offsets."
	leakInstructionsPrefix = "You detect leaks of a confidential system prompt. Report every passage of the content that reproduces or paraphrases the system prompt below.\n\nSystem prompt:\n"
)

// PromptLeakInstructions 构造系统提示泄露检测指令
func PromptLeakInstructions(systemPrompt string) string {
	return leakInstructionsPrefix + systemPrompt
}

// LLMDetectorConfig 模型检测器配置
type LLMDetectorConfig struct {
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	Instructions string   `json:"instructions" yaml:"instructions"`
	Categories   []string `json:"categories" yaml:"categories"`
	MaxTokens    int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// ModerationLLMConfig 审核预置
func ModerationLLMConfig(model string) LLMDetectorConfig {
	return LLMDetectorConfig{Name: "llm-moderation", Model: model, Instructions: ModerationInstructions, Categories: moderation.DefaultCategories()}
}

// PIILLMConfig PII 预置
func PIILLMConfig(model string) LLMDetectorConfig {
	return LLMDetectorConfig{
		Name:         "llm-pii",
		Model:        model,
		Instructions: PIIInstructions,
		Categories:   []string{PIIEmail, PIIPhone, PIICreditCard, PIISSN, PIIIPAddress, PIIAPIKey, "name", "address"},
	}
}

// PromptLeakLLMConfig 系统提示泄露预置
func PromptLeakLLMConfig(model, systemPrompt string) LLMDetectorConfig {
	return LLMDetectorConfig{
		Name:         "llm-system-prompt",
		Model:        model,
		Instructions: PromptLeakInstructions(systemPrompt),
		Categories:   []string{CategorySystemPrompt},
	}
}

// llmVerdict 模型返回的结构
type llmVerdict struct {
	Categories map[string]float64 `json:"categories"`
	Detections []struct {
		Type       string   `json:"type"`
		Value      string   `json:"value"`
		Start      *int     `json:"start,omitempty"`
		End        *int     `json:"end,omitempty"`
		Confidence *float64 `json:"confidence,omitempty"`
	} `json:"detections,omitempty"`
	RedactedContent string `json:"redacted_content,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// LLMDetector 通过二级模型调用完成检测，输出受 JSON Schema 约束
type LLMDetector struct {
	cfg       LLMDetectorConfig
	provider  llm.Provider
	schema    *schema.JSONSchema
	rawSchema json.RawMessage
	validator *schema.Validator
}

// NewLLMDetector 创建模型检测器
func NewLLMDetector(provider llm.Provider, cfg LLMDetectorConfig) (*LLMDetector, error) {
	if provider == nil {
		return nil, types.NewError(types.ErrProviderNotSet, "llm detector requires a provider")
	}
	if len(cfg.Categories) == 0 {
		return nil, types.NewError(types.ErrInvalidConfig, "llm detector requires at least one category")
	}
	if cfg.Name == "" {
		cfg.Name = "llm-detector"
	}
	s := detectionSchema(cfg.Categories)
	raw, err := s.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal detection schema: %w", err)
	}
	return &LLMDetector{cfg: cfg, provider: provider, schema: s, rawSchema: raw, validator: schema.NewValidator()}, nil
}

func detectionSchema(categories []string) *schema.JSONSchema {
	scores := schema.Object()
	for _, c := range categories {
		scores.AddProperty(c, schema.Number().WithRange(0, 1), false)
	}

	enum := make([]any, len(categories))
	for i, c := range categories {
		enum[i] = c
	}
	item := schema.Object().
		AddProperty("type", schema.Enum(enum...), true).
		AddProperty("value", schema.String().WithDescription("exact text of the detection"), true).
		AddProperty("start", schema.Integer().WithDescription("byte offset, inclusive"), false).
		AddProperty("end", schema.Integer().WithDescription("byte offset, exclusive"), false).
		AddProperty("confidence", schema.Number().WithRange(0, 1), false)

	return schema.Object().
		AddProperty("categories", scores.WithDescription("confidence per category, 0 to 1"), true).
		AddProperty("detections", schema.Array(item), false).
		AddProperty("redacted_content", schema.String(), false).
		AddProperty("reason", schema.String(), false)
}

func (d *LLMDetector) Name() string { return d.cfg.Name }

func (d *LLMDetector) Detect(ctx context.Context, req DetectRequest) (*Detection, error) {
	resp, err := d.provider.Completion(ctx, &llm.ChatRequest{
		Model:     d.cfg.Model,
		MaxTokens: d.cfg.MaxTokens,
		Messages: []llm.Message{
			{Role: types.RoleSystem, Content: d.systemPrompt()},
			{Role: types.RoleUser, Content: userPrompt(req)},
		},
		ResponseFormat: &llm.ResponseFormat{
			Type:   llm.ResponseFormatJSONSchema,
			Name:   "detection",
			Schema: d.rawSchema,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("detection call: %w", err)
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		return nil, err
	}

	payload := schema.ExtractJSON(choice.Message.Content)
	if err := d.validator.Validate([]byte(payload), d.schema); err != nil {
		return nil, fmt.Errorf("detection response: %w", err)
	}
	var v llmVerdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("decode detection response: %w", err)
	}
	return v.toDetection(req.Text), nil
}

func (d *LLMDetector) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString(d.cfg.Instructions)
	sb.WriteString("\n\nCategories: ")
	sb.WriteString(strings.Join(d.cfg.Categories, ", "))
	sb.WriteString("\nScores range from 0 (absent) to 1 (certain). Respond only with JSON.")
	return sb.String()
}

func userPrompt(req DetectRequest) string {
	if len(req.Context) == 0 {
		return req.Text
	}
	return "Preceding context (do not report detections inside it):\n" + strings.Join(req.Context, "") +
		"\n\nContent to analyze:\n" + req.Text
}

// toDetection 模型给出的偏移不可靠：偏移与 value 不一致时按原文重新定位
func (v llmVerdict) toDetection(text string) *Detection {
	out := &Detection{
		Scores:       make(map[string]float64, len(v.Categories)),
		RedactedText: v.RedactedContent,
		Reason:       v.Reason,
	}
	for cat, s := range v.Categories {
		out.Scores[cat] = s
	}
	for _, det := range v.Detections {
		// 未给出置信度视为确定命中；显式 0 保持为 0
		score := 1.0
		if det.Confidence != nil {
			score = *det.Confidence
		}
		if score > out.Scores[det.Type] {
			out.Scores[det.Type] = score
		}
		if start, end, ok := locate(text, det.Value, det.Start, det.End); ok {
			out.Spans = append(out.Spans, Span{Type: det.Type, Start: start, End: end, Score: score})
		}
	}
	return out
}

func locate(text, value string, start, end *int) (int, int, bool) {
	if start != nil && end != nil && *start >= 0 && *end <= len(text) && *start < *end {
		if value == "" || text[*start:*end] == value {
			return *start, *end, true
		}
	}
	if value == "" {
		return 0, 0, false
	}
	i := strings.Index(text, value)
	if i < 0 {
		return 0, 0, false
	}
	return i, i + len(value), true
}
