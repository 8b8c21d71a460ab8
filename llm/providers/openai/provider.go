package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/internal/tlsutil"
	"github.com/BaSui01/agentstream/llm"
	"github.com/BaSui01/agentstream/llm/providers"
	"github.com/BaSui01/agentstream/types"
)

const fallbackModel = "gpt-4o-mini"

// Provider 基于 openai-go 的 llm.Provider 实现。
// 流水线用它做二级调用：结构化抽取与检测模型。
type Provider struct {
	cfg    providers.OpenAIConfig
	client oai.Client
	logger *zap.Logger
}

// NewProvider 创建 OpenAI Provider
func NewProvider(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = providers.DefaultOpenAIConfig().Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	opts := []option.RequestOption{
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithHTTPClient(tlsutil.SecureHTTPClient(0)),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}

	return &Provider{
		cfg:    cfg,
		client: oai.NewClient(opts...),
		logger: logger.With(zap.String("component", "openai_provider")),
	}
}

func (p *Provider) Name() string { return "openai" }

// Completion 发起同步请求
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params, p.requestOptions(req)...)
	if err != nil {
		return nil, p.mapError(err)
	}

	out := &llm.ChatResponse{
		ID:        resp.ID,
		Provider:  p.Name(),
		Model:     resp.Model,
		Usage:     chatUsage(resp.Usage),
		CreatedAt: time.Unix(resp.Created, 0),
	}
	for _, c := range resp.Choices {
		msg := llm.Message{Role: types.RoleAssistant, Content: c.Message.Content}
		if msg.Content == "" && c.Message.Refusal != "" {
			msg.Content = c.Message.Refusal
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        int(c.Index),
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}

	p.logger.Debug("completion done",
		zap.String("model", out.Model),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)))
	return out, nil
}

// Stream 发起流式请求，增量转换为 agentflow 线格式
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = oai.ChatCompletionStreamOptionsParam{IncludeUsage: oai.Bool(true)}

	s := p.client.Chat.Completions.NewStreaming(ctx, params, p.requestOptions(req)...)
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer s.Close()
		for s.Next() {
			chunk := toStreamChunk(s.Current(), p.Name())
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
		if err := s.Err(); err != nil && ctx.Err() == nil {
			var le *llm.Error
			if !errors.As(p.mapError(err), &le) {
				le = &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), Provider: p.Name()}
			}
			select {
			case <-ctx.Done():
			case ch <- llm.StreamChunk{Provider: p.Name(), Err: le}:
			}
		}
	}()
	return ch, nil
}

func (p *Provider) requestOptions(req *llm.ChatRequest) []option.RequestOption {
	var opts []option.RequestOption
	if req.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(req.Timeout))
	}
	if req.TraceID != "" {
		opts = append(opts, option.WithHeader("X-Trace-ID", req.TraceID))
	}
	return opts
}

func (p *Provider) buildParams(req *llm.ChatRequest) (oai.ChatCompletionNewParams, error) {
	if req == nil || len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "no messages", HTTPStatus: http.StatusBadRequest, Provider: p.Name(),
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(providers.ChooseModel(req.Model, p.cfg.Model, fallbackModel)),
		Messages: convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = oai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = oai.Float(float64(req.Temperature))
	}
	if req.ResponseFormat != nil {
		rf, err := convertResponseFormat(req.ResponseFormat)
		if err != nil {
			return params, &llm.Error{
				Code: llm.ErrInvalidRequest, Message: err.Error(), HTTPStatus: http.StatusBadRequest, Provider: p.Name(),
			}
		}
		params.ResponseFormat = rf
	}
	return params, nil
}

func convertMessages(msgs []llm.Message) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, oai.SystemMessage(m.Content))
		case types.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, oai.AssistantMessage(m.Content))
				continue
			}
			am := &oai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				am.Content.OfString = oai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				am.ToolCalls = append(am.ToolCalls, oai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &oai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: oai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					},
				})
			}
			out = append(out, oai.ChatCompletionMessageParamUnion{OfAssistant: am})
		case types.RoleTool:
			out = append(out, oai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, oai.UserMessage(m.Content))
		}
	}
	return out
}

func convertResponseFormat(rf *llm.ResponseFormat) (oai.ChatCompletionNewParamsResponseFormatUnion, error) {
	switch rf.Type {
	case llm.ResponseFormatJSONObject:
		return oai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &shared.ResponseFormatJSONObjectParam{}}, nil
	case llm.ResponseFormatJSONSchema:
		var schema map[string]any
		if err := json.Unmarshal(rf.Schema, &schema); err != nil {
			return oai.ChatCompletionNewParamsResponseFormatUnion{}, fmt.Errorf("invalid response schema: %w", err)
		}
		name := rf.Name
		if name == "" {
			name = "response"
		}
		return oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Strict: oai.Bool(rf.Strict),
					Schema: schema,
				},
			},
		}, nil
	default:
		return oai.ChatCompletionNewParamsResponseFormatUnion{OfText: &shared.ResponseFormatTextParam{}}, nil
	}
}

func chatUsage(u oai.CompletionUsage) llm.ChatUsage {
	return llm.ChatUsage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		ReasoningTokens:  int(u.CompletionTokensDetails.ReasoningTokens),
		CachedTokens:     int(u.PromptTokensDetails.CachedTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

// toStreamChunk 转换 SDK 增量；只取第一个 choice
func toStreamChunk(c oai.ChatCompletionChunk, provider string) llm.StreamChunk {
	out := llm.StreamChunk{ID: c.ID, Provider: provider, Model: c.Model}
	if c.Usage.TotalTokens > 0 || c.Usage.PromptTokens > 0 || c.Usage.CompletionTokens > 0 {
		u := chatUsage(c.Usage)
		out.Usage = &u
	}
	if len(c.Choices) == 0 {
		return out
	}
	choice := c.Choices[0]
	out.Index = int(choice.Index)
	out.FinishReason = choice.FinishReason
	out.Delta = llm.Message{Role: types.RoleAssistant, Content: choice.Delta.Content}
	if out.Delta.Content == "" && choice.Delta.Refusal != "" {
		out.Delta.Content = choice.Delta.Refusal
	}
	for _, tc := range choice.Delta.ToolCalls {
		out.Delta.ToolCalls = append(out.Delta.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

// mapError 将 SDK 错误映射为 llm.Error
func (p *Provider) mapError(err error) error {
	var apiErr *oai.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return &llm.Error{Code: llm.ErrUpstreamTimeout, Message: err.Error(), Retryable: true, Provider: p.Name()}
		}
		return &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), Provider: p.Name()}
	}

	e := &llm.Error{Message: apiErr.Message, HTTPStatus: apiErr.StatusCode, Provider: p.Name()}
	if e.Message == "" {
		e.Message = apiErr.Error()
	}
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		e.Code = llm.ErrUnauthorized
	case apiErr.StatusCode == http.StatusTooManyRequests:
		e.Code, e.Retryable = llm.ErrRateLimited, true
	case apiErr.StatusCode == http.StatusBadRequest:
		e.Code = llm.ErrInvalidRequest
	case apiErr.StatusCode == 529 || apiErr.StatusCode == http.StatusServiceUnavailable:
		e.Code, e.Retryable = llm.ErrModelOverloaded, true
	case apiErr.StatusCode >= 500:
		e.Code, e.Retryable = llm.ErrUpstreamError, true
	default:
		e.Code = llm.ErrUpstreamError
	}
	return e
}
