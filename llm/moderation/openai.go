package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/internal/tlsutil"
)

// ErrEmptyInput 请求没有任何文本
var ErrEmptyInput = errors.New("moderation: empty input")

// OpenAIProvider 基于 openai-go 的审核提供者
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client openai.Client
	logger *zap.Logger
}

// NewOpenAIProvider 创建 OpenAI 审核提供者
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOpenAIConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
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

	return &OpenAIProvider{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		logger: logger.With(zap.String("component", "moderation_openai")),
	}
}

func (p *OpenAIProvider) Name() string { return "openai-moderation" }

// Moderate 检查文本是否违规
func (p *OpenAIProvider) Moderate(ctx context.Context, req *ModerationRequest) (*ModerationResponse, error) {
	if req == nil || len(req.Input) == 0 {
		return nil, ErrEmptyInput
	}
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	params := openai.ModerationNewParams{Model: openai.ModerationModel(model)}
	if len(req.Input) == 1 {
		params.Input = openai.ModerationNewParamsInputUnion{OfString: openai.String(req.Input[0])}
	} else {
		params.Input = openai.ModerationNewParamsInputUnion{OfStringArray: req.Input}
	}

	start := time.Now()
	resp, err := p.client.Moderations.New(ctx, params)
	if err != nil {
		p.logger.Warn("moderation request failed",
			zap.String("model", model),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("moderation request failed: %w", err)
	}

	results := make([]ModerationResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = ModerationResult{
			Flagged:    r.Flagged,
			Categories: mapCategories(r.Categories),
			Scores:     mapScores(r.CategoryScores),
		}
	}

	p.logger.Debug("moderation completed",
		zap.String("model", resp.Model),
		zap.Int("inputs", len(req.Input)),
		zap.Duration("latency", time.Since(start)))

	return &ModerationResponse{
		Provider:  p.Name(),
		Model:     resp.Model,
		Results:   results,
		CreatedAt: time.Now(),
	}, nil
}

func mapCategories(c openai.ModerationCategories) map[string]bool {
	return map[string]bool{
		CategoryHarassment:            c.Harassment,
		CategoryHarassmentThreatening: c.HarassmentThreatening,
		CategoryHate:                  c.Hate,
		CategoryHateThreatening:       c.HateThreatening,
		CategoryIllicit:               c.Illicit,
		CategoryIllicitViolent:        c.IllicitViolent,
		CategorySelfHarm:              c.SelfHarm,
		CategorySelfHarmInstructions:  c.SelfHarmInstructions,
		CategorySelfHarmIntent:        c.SelfHarmIntent,
		CategorySexual:                c.Sexual,
		CategorySexualMinors:          c.SexualMinors,
		CategoryViolence:              c.Violence,
		CategoryViolenceGraphic:       c.ViolenceGraphic,
	}
}

func mapScores(s openai.ModerationCategoryScores) map[string]float64 {
	return map[string]float64{
		CategoryHarassment:            s.Harassment,
		CategoryHarassmentThreatening: s.HarassmentThreatening,
		CategoryHate:                  s.Hate,
		CategoryHateThreatening:       s.HateThreatening,
		CategoryIllicit:               s.Illicit,
		CategoryIllicitViolent:        s.IllicitViolent,
		CategorySelfHarm:              s.SelfHarm,
		CategorySelfHarmInstructions:  s.SelfHarmInstructions,
		CategorySelfHarmIntent:        s.SelfHarmIntent,
		CategorySexual:                s.Sexual,
		CategorySexualMinors:          s.SexualMinors,
		CategoryViolence:              s.Violence,
		CategoryViolenceGraphic:       s.ViolenceGraphic,
	}
}
