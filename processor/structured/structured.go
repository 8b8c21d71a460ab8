package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/llm"
	"github.com/BaSui01/agentstream/llm/retry"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/schema"
	"github.com/BaSui01/agentstream/types"
)

// DefaultName 默认处理器名称
const DefaultName = "structured-output"

// ErrInvalidOutput 二级模型输出不符合 Schema
var ErrInvalidOutput = errors.New("structured: output does not match schema")

// ErrorStrategy 抽取失败时的处理策略
type ErrorStrategy string

const (
	StrategyStrict   ErrorStrategy = "strict"
	StrategyWarn     ErrorStrategy = "warn"
	StrategyFallback ErrorStrategy = "fallback"
)

const defaultInstructions = "Extract the information in the text below into a JSON object that matches the provided schema. " +
	"Use only facts stated in the text. Respond only with JSON."

// Config 结构化输出配置
type Config struct {
	Name          string             `json:"name,omitempty" yaml:"name,omitempty"`
	Schema        *schema.JSONSchema `json:"schema" yaml:"-"`
	SchemaName    string             `json:"schema_name,omitempty" yaml:"schema_name,omitempty"`
	Model         string             `json:"model,omitempty" yaml:"model,omitempty"`
	Instructions  string             `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	ErrorStrategy ErrorStrategy      `json:"error_strategy" yaml:"error_strategy"`
	FallbackValue any                `json:"fallback_value,omitempty" yaml:"fallback_value,omitempty"`
	// Strict 要求模型端严格遵守 Schema（OpenAI strict 模式）
	Strict bool `json:"strict,omitempty" yaml:"strict,omitempty"`
	// Retry 仅对不符合 Schema 的输出与可重试的上游错误生效
	Retry retry.Policy `json:"retry" yaml:"retry"`
}

// Processor 结构化输出处理器，只实现结果钩子
type Processor struct {
	cfg       Config
	provider  llm.Provider
	rawSchema json.RawMessage
	validator *schema.Validator
	retryer   *retry.Retryer
	logger    *zap.Logger
}

// New 创建处理器
func New(cfg Config, provider llm.Provider, logger *zap.Logger) (*Processor, error) {
	if provider == nil {
		return nil, types.NewError(types.ErrProviderNotSet, "structured output requires a provider")
	}
	if cfg.Schema == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "structured output requires a schema")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.SchemaName == "" {
		cfg.SchemaName = "structured_output"
	}
	if cfg.Instructions == "" {
		cfg.Instructions = defaultInstructions
	}
	switch cfg.ErrorStrategy {
	case "":
		cfg.ErrorStrategy = StrategyStrict
	case StrategyStrict, StrategyWarn, StrategyFallback:
	default:
		return nil, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("unknown error strategy %q", cfg.ErrorStrategy))
	}
	raw, err := cfg.Schema.Raw()
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "marshal schema").WithCause(err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "structured_output"), zap.String("processor", cfg.Name))

	policy := cfg.Retry
	policy.Retryable = func(err error) bool {
		if errors.Is(err, ErrInvalidOutput) {
			return true
		}
		var le *llm.Error
		return errors.As(err, &le) && le.Retryable
	}
	return &Processor{
		cfg:       cfg,
		provider:  provider,
		rawSchema: raw,
		validator: schema.NewValidator(),
		retryer:   retry.NewRetryer(policy, logger),
		logger:    logger,
	}, nil
}

// NewFor 使用 T 的反射 Schema 创建处理器
func NewFor[T any](cfg Config, provider llm.Provider, logger *zap.Logger) (*Processor, error) {
	s, err := schema.For[T]()
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "generate schema").WithCause(err)
	}
	cfg.Schema = s
	return New(cfg, provider, logger)
}

func (p *Processor) Name() string { return p.cfg.Name }

// ProcessOutputResult 实现 processor.ResultProcessor
func (p *Processor) ProcessOutputResult(ctx context.Context, args processor.ResultArgs) ([]types.Message, error) {
	idx := lastAssistant(args.Messages)
	if idx < 0 {
		return args.Messages, nil
	}

	obj, err := p.Extract(ctx, args.Messages[idx].Text())
	if err == nil {
		return annotate(args.Messages, idx, obj), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch p.cfg.ErrorStrategy {
	case StrategyWarn:
		p.logger.Warn("structured output extraction failed, passing result through",
			zap.String("run_id", args.RunID), zap.Error(err))
		return args.Messages, nil
	case StrategyFallback:
		p.logger.Warn("structured output extraction failed, using fallback value",
			zap.String("run_id", args.RunID), zap.Error(err))
		if p.cfg.FallbackValue == nil {
			return args.Messages, nil
		}
		return annotate(args.Messages, idx, p.cfg.FallbackValue), nil
	default:
		return nil, args.Abort(fmt.Sprintf("structured output extraction failed: %v", err))
	}
}

// Extract 发起二级调用，返回符合 Schema 的对象
func (p *Processor) Extract(ctx context.Context, text string) (any, error) {
	return retry.Do(ctx, p.retryer, func(attempt int) (any, error) {
		resp, err := p.provider.Completion(ctx, &llm.ChatRequest{
			Model: p.cfg.Model,
			Messages: []llm.Message{
				{Role: types.RoleSystem, Content: p.cfg.Instructions},
				{Role: types.RoleUser, Content: text},
			},
			ResponseFormat: &llm.ResponseFormat{
				Type:   llm.ResponseFormatJSONSchema,
				Name:   p.cfg.SchemaName,
				Schema: p.rawSchema,
				Strict: p.cfg.Strict,
			},
		})
		if err != nil {
			return nil, err
		}
		choice, err := llm.FirstChoice(resp)
		if err != nil {
			return nil, err
		}
		return p.parse(choice.Message.Content)
	})
}

func (p *Processor) parse(content string) (any, error) {
	payload := schema.ExtractJSON(content)
	if err := p.validator.Validate([]byte(payload), p.cfg.Schema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	var obj any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return obj, nil
}

func lastAssistant(msgs []types.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleAssistant && msgs[i].HasText() {
			return i
		}
	}
	return -1
}

func annotate(msgs []types.Message, idx int, obj any) []types.Message {
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	out[idx] = msgs[idx].WithMetadata(types.MetadataStructuredOutput, obj)
	return out
}

// Decode 将消息上的结构化结果解码到 T
func Decode[T any](msg types.Message) (T, error) {
	var out T
	v, ok := msg.Metadata[types.MetadataStructuredOutput]
	if !ok {
		return out, fmt.Errorf("message has no %s metadata", types.MetadataStructuredOutput)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}
