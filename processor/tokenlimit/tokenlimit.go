package tokenlimit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/llm/tokenizer"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// DefaultName 默认处理器名称
const DefaultName = "token-limiter"

const stateKey = "tokens"

// Strategy 超限策略
type Strategy string

const (
	StrategyTruncate Strategy = "truncate"
	StrategyAbort    Strategy = "abort"
)

// CountMode 计数模式
type CountMode string

const (
	// CountCumulative 整个运行累计计数
	CountCumulative CountMode = "cumulative"
	// CountPart 每个块评估后清零
	CountPart CountMode = "part"
)

// Config 令牌限制配置
type Config struct {
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Limit     int            `json:"limit" yaml:"limit"`
	Strategy  Strategy       `json:"strategy" yaml:"strategy"`
	CountMode CountMode      `json:"count_mode" yaml:"count_mode"`
	Tokenizer tokenizer.Kind `json:"tokenizer,omitempty" yaml:"tokenizer,omitempty"`
	Model     string         `json:"model,omitempty" yaml:"model,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Name:      DefaultName,
		Limit:     1000,
		Strategy:  StrategyTruncate,
		CountMode: CountCumulative,
		Tokenizer: tokenizer.KindTiktoken,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("token limit must be positive, got %d", c.Limit)
	}
	switch c.Strategy {
	case StrategyTruncate, StrategyAbort:
	default:
		return fmt.Errorf("unknown token limit strategy %q", c.Strategy)
	}
	switch c.CountMode {
	case CountCumulative, CountPart:
	default:
		return fmt.Errorf("unknown count mode %q", c.CountMode)
	}
	return nil
}

// Processor 令牌限制处理器，实现流钩子与结果钩子
type Processor struct {
	cfg     Config
	tok     tokenizer.Tokenizer
	tokOpts []tokenizer.Option
	logger  *zap.Logger
}

// Option 配置处理器
type Option func(*Processor)

// WithTokenizer 替换分词器
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(p *Processor) { p.tok = t }
}

// WithTokenizerOptions 传给默认分词器构造的选项，WithTokenizer 存在时忽略
func WithTokenizerOptions(opts ...tokenizer.Option) Option {
	return func(p *Processor) { p.tokOpts = append(p.tokOpts, opts...) }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New 创建令牌限制处理器
func New(cfg Config, opts ...Option) (*Processor, error) {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.CountMode == "" {
		cfg.CountMode = def.CountMode
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, err.Error())
	}

	p := &Processor{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "token_limiter"), zap.String("processor", cfg.Name))
	if p.tok == nil {
		tokOpts := append([]tokenizer.Option{tokenizer.WithLogger(p.logger)}, p.tokOpts...)
		tok, err := tokenizer.New(cfg.Tokenizer, cfg.Model, tokOpts...)
		if err != nil {
			return nil, types.NewError(types.ErrTokenizerError, "create tokenizer").WithCause(err)
		}
		p.tok = tok
	}
	return p, nil
}

func (p *Processor) Name() string { return p.cfg.Name }

// Limit 返回上限
func (p *Processor) Limit() int { return p.cfg.Limit }

// CurrentTokens 返回运行内的当前计数
func CurrentTokens(st *processor.State) int {
	n, _ := st.CustomState[stateKey].(int)
	return n
}

// ProcessOutputStream 实现 processor.StreamProcessor
func (p *Processor) ProcessOutputStream(_ context.Context, args processor.StreamArgs) (*stream.Chunk, error) {
	chunk := args.Chunk
	n, err := p.countChunk(chunk)
	if err != nil {
		return nil, types.NewError(types.ErrTokenizerError, "count chunk tokens").WithCause(err)
	}
	if n == 0 {
		return &chunk, nil
	}

	total := CurrentTokens(args.State) + n
	args.CustomState()[stateKey] = total
	if p.cfg.CountMode == CountPart {
		args.CustomState()[stateKey] = 0
	}

	if total <= p.cfg.Limit {
		return &chunk, nil
	}
	if p.cfg.Strategy == StrategyAbort {
		return nil, args.Abort(p.abortReason(total))
	}
	p.logger.Debug("chunk suppressed by token limit",
		zap.String("run_id", args.RunID),
		zap.Int("limit", p.cfg.Limit),
		zap.Int("current", total))
	return nil, nil
}

// ProcessOutputResult 实现 processor.ResultProcessor，只作用于 assistant 消息。
// truncate：按顺序保留完整的文本段，首个超出预算的段保留最长可容纳前缀，其后的文本段丢弃。
func (p *Processor) ProcessOutputResult(_ context.Context, args processor.ResultArgs) ([]types.Message, error) {
	used := 0
	exhausted := false
	out := make([]types.Message, len(args.Messages))

	for i, msg := range args.Messages {
		m := msg.Clone()
		out[i] = m
		if m.Role != types.RoleAssistant {
			continue
		}
		parts := make([]types.Part, 0, len(m.Parts))
		for _, part := range m.Parts {
			if part.Type != types.PartText {
				parts = append(parts, part)
				continue
			}
			if exhausted {
				continue
			}
			n, err := p.tok.CountTokens(part.Text)
			if err != nil {
				return nil, types.NewError(types.ErrTokenizerError, "count text tokens").WithCause(err)
			}
			if used+n <= p.cfg.Limit {
				used += n
				parts = append(parts, part)
				continue
			}
			if p.cfg.Strategy == StrategyAbort {
				return nil, args.Abort(p.abortReason(used + n))
			}

			prefix, err := longestPrefix(p.tok, part.Text, p.cfg.Limit-used)
			if err != nil {
				return nil, types.NewError(types.ErrTokenizerError, "truncate text").WithCause(err)
			}
			if prefix != "" {
				parts = append(parts, types.TextPart(prefix))
			}
			exhausted = true
		}
		m.Parts = parts
		out[i] = m
	}
	return out, nil
}

func (p *Processor) abortReason(current int) string {
	return fmt.Sprintf("Token limit of %d exceeded (current: %d)", p.cfg.Limit, current)
}

// countChunk 按块类型计数；未列出的类型计 0
func (p *Processor) countChunk(c stream.Chunk) (int, error) {
	switch c.Type {
	case stream.TypeTextDelta:
		return p.tok.CountTokens(c.Text())
	case stream.TypeObject:
		pl, _ := stream.PayloadAs[stream.ObjectPayload](c)
		return p.countJSON(pl.Object)
	case stream.TypeToolCall:
		pl, _ := stream.PayloadAs[stream.ToolCallPayload](c)
		return p.tok.CountTokens(pl.ToolName + string(pl.Args))
	case stream.TypeToolResult:
		pl, _ := stream.PayloadAs[stream.ToolResultPayload](c)
		return p.tok.CountTokens(pl.ToolName + string(pl.Result))
	case stream.TypeTextStart, stream.TypeTextEnd,
		stream.TypeReasoningStart, stream.TypeReasoningDelta, stream.TypeReasoningEnd,
		stream.TypeSource, stream.TypeFile, stream.TypeToolCallDelta, stream.TypeToolError,
		stream.TypeStepStart, stream.TypeStepFinish, stream.TypeFinish, stream.TypeError,
		stream.TypeRaw, stream.TypeStart, stream.TypeTripwire, stream.TypeAbort:
		return 0, nil
	default:
		return 0, nil
	}
}

func (p *Processor) countJSON(v any) (int, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return p.tok.CountTokens(string(raw))
}

// longestPrefix 二分查找编码长度不超过 budget 的最长前缀（按 rune 边界）
func longestPrefix(tok tokenizer.Tokenizer, text string, budget int) (string, error) {
	if budget <= 0 {
		return "", nil
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		n, err := tok.CountTokens(string(runes[:mid]))
		if err != nil {
			return "", err
		}
		if n <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo]), nil
}
