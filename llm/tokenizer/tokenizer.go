package tokenizer

import (
	"fmt"

	"go.uber.org/zap"
)

// Tokenizer 统一的 Token 计数接口。
// 实现必须是确定性的，且对前缀单调：CountTokens(prefix) <= CountTokens(text)。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称
	Name() string
}

// Encoder 可选能力：真实编码/解码
type Encoder interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
}

// Kind 分词器类型
type Kind string

const (
	KindTiktoken  Kind = "tiktoken"
	KindEstimator Kind = "estimator"
)

type options struct {
	logger *zap.Logger
	loader EncodingLoader
}

// Option 配置 New
type Option func(*options)

// WithLogger 设置日志，用于记录编码回退
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEncodingLoader 替换 tiktoken 编码加载函数
func WithEncodingLoader(loader EncodingLoader) Option {
	return func(o *options) {
		if loader != nil {
			o.loader = loader
		}
	}
}

// New 按类型创建分词器。model 用于选择 tiktoken 编码。
// tiktoken 编码在此处立即加载；加载失败时记录警告并回退到 EstimatorTokenizer，
// 保证计数始终可用。
func New(kind Kind, model string, opts ...Option) (Tokenizer, error) {
	o := options{logger: zap.NewNop(), loader: LoadTiktokenEncoding}
	for _, opt := range opts {
		opt(&o)
	}

	switch kind {
	case KindTiktoken, "":
		t := newTiktoken(model, o.loader)
		if err := t.Load(); err != nil {
			o.logger.Warn("tiktoken encoding unavailable, falling back to estimator",
				zap.String("model", model),
				zap.String("encoding", t.Encoding()),
				zap.Error(err))
			return NewEstimatorTokenizer(), nil
		}
		return t, nil
	case KindEstimator:
		return NewEstimatorTokenizer(), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer kind: %s", kind)
	}
}
