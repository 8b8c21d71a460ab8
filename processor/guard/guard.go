package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/internal/metrics"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// Strategy 命中后的处理策略
type Strategy string

const (
	// StrategyBlock 中止运行
	StrategyBlock Strategy = "block"
	// StrategyWarn 记录日志，内容原样通过
	StrategyWarn Strategy = "warn"
	// StrategyFilter 丢弃命中的消息或块
	StrategyFilter Strategy = "filter"
	// StrategyRedact 脱敏后通过
	StrategyRedact Strategy = "redact"
)

// Config 防护处理器公共配置
type Config struct {
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	// Threshold 判定阈值，nil 时取 DefaultThreshold；显式 0 表示任何正分数都命中
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Window 流模式下附带的前序块数量，0 表示只检测当前块
	Window   int      `json:"window" yaml:"window"`
	Redactor Redactor `json:"redaction" yaml:"redaction"`
}

func (c Config) withDefaults(name string, strategy Strategy) Config {
	if c.Name == "" {
		c.Name = name
	}
	if c.Strategy == "" {
		c.Strategy = strategy
	}
	if c.Threshold == nil {
		c.Threshold = Threshold(DefaultThreshold)
	} else {
		c.Threshold = Threshold(*c.Threshold)
	}
	if c.Redactor.Method == "" {
		c.Redactor = DefaultRedactor()
	}
	return c
}

// Validate 校验配置
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyBlock, StrategyWarn, StrategyFilter, StrategyRedact:
	default:
		return fmt.Errorf("unknown guard strategy %q", c.Strategy)
	}
	if c.Threshold != nil && (*c.Threshold < 0 || *c.Threshold > 1) {
		return fmt.Errorf("threshold must be within [0,1], got %v", *c.Threshold)
	}
	if c.Window < 0 {
		return fmt.Errorf("window must not be negative, got %d", c.Window)
	}
	switch c.Redactor.Method {
	case RedactMask, RedactPlaceholder, RedactRemove, RedactHash:
	default:
		return fmt.Errorf("unknown redaction method %q", c.Redactor.Method)
	}
	return nil
}

// Option 配置防护处理器
type Option func(*guard)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(g *guard) { g.metrics = c }
}

// guard 三种防护处理器的共享实现
type guard struct {
	cfg      Config
	detector Detector
	// blockPrefix 中止原因前缀
	blockPrefix string

	logger  *zap.Logger
	metrics *metrics.Collector
}

func newGuard(component string, cfg Config, det Detector, blockPrefix string, opts []Option) (*guard, error) {
	if det == nil {
		return nil, types.NewError(types.ErrInvalidConfig, component+": detector is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, component+": "+err.Error())
	}
	g := &guard{
		cfg:         cfg,
		detector:    det,
		blockPrefix: blockPrefix,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(
		zap.String("component", component),
		zap.String("processor", cfg.Name),
		zap.String("detector", det.Name()))
	return g, nil
}

func (g *guard) Name() string { return g.cfg.Name }

type action int

const (
	actionKeep action = iota
	actionReplace
	actionDrop
	actionBlock
)

type decision struct {
	action action
	text   string
	reason string
}

// decide 调用检测器并按策略给出处理结论。检测失败时 fail-open。
func (g *guard) decide(ctx context.Context, runID string, req DetectRequest) decision {
	start := time.Now()
	det, err := g.detector.Detect(ctx, req)
	if err != nil {
		status := metrics.DetectorError
		if errors.Is(err, ErrDetectorUnavailable) {
			status = metrics.DetectorLimited
		}
		g.metrics.RecordDetectorCall(g.detector.Name(), status, time.Since(start))
		g.logger.Warn("detector failed, passing content through",
			zap.String("run_id", runID),
			zap.String("kind", string(req.Kind)),
			zap.Error(err))
		return decision{action: actionKeep}
	}
	g.metrics.RecordDetectorCall(g.detector.Name(), metrics.DetectorOK, time.Since(start))

	flagged := det.Flagged(*g.cfg.Threshold)
	if len(flagged) == 0 {
		return decision{action: actionKeep}
	}

	switch g.cfg.Strategy {
	case StrategyBlock:
		return decision{action: actionBlock, reason: g.reason(flagged, det)}
	case StrategyWarn:
		g.logger.Warn("content flagged",
			zap.String("run_id", runID),
			zap.String("kind", string(req.Kind)),
			zap.Strings("categories", flagged))
		return decision{action: actionKeep}
	case StrategyFilter:
		g.logger.Info("content filtered",
			zap.String("run_id", runID),
			zap.String("kind", string(req.Kind)),
			zap.Strings("categories", flagged))
		return decision{action: actionDrop}
	default:
		return decision{action: actionReplace, text: g.redact(req.Text, det, flagged)}
	}
}

func (g *guard) reason(flagged []string, det *Detection) string {
	msg := fmt.Sprintf("%s: %s", g.blockPrefix, strings.Join(flagged, ", "))
	if det.Reason != "" {
		msg += " (" + det.Reason + ")"
	}
	return msg
}

// redact 优先使用检测器给出的脱敏文本；无可定位片段时整段替换
func (g *guard) redact(text string, det *Detection, flagged []string) string {
	if det.RedactedText != "" {
		return det.RedactedText
	}
	spans := det.SpansAbove(*g.cfg.Threshold)
	if len(spans) == 0 {
		spans = []Span{{Type: flagged[0], Start: 0, End: len(text)}}
	}
	return g.cfg.Redactor.Redact(text, spans)
}

// processMessages 对指定角色的消息逐条检测
func (g *guard) processMessages(ctx context.Context, kind Kind, runID string, msgs []types.Message, role types.Role, abort func(string) error) ([]types.Message, error) {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != role || !m.HasText() {
			out = append(out, m)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := g.decide(ctx, runID, DetectRequest{Kind: kind, Text: m.Text()})
		switch d.action {
		case actionBlock:
			return nil, abort(d.reason)
		case actionDrop:
			continue
		case actionReplace:
			out = append(out, m.WithText(d.text))
		default:
			out = append(out, m)
		}
	}
	return out, nil
}

// processChunk 检测 text-delta，其余块原样通过
func (g *guard) processChunk(ctx context.Context, args processor.StreamArgs) (*stream.Chunk, error) {
	chunk := args.Chunk
	if chunk.Type != stream.TypeTextDelta || chunk.Text() == "" {
		return &chunk, nil
	}

	req := DetectRequest{Kind: KindStream, Text: chunk.Text()}
	if g.cfg.Window > 0 {
		for _, prev := range args.State.Window(g.cfg.Window) {
			if t := prev.Text(); t != "" {
				req.Context = append(req.Context, t)
			}
		}
	}

	d := g.decide(ctx, args.RunID, req)
	switch d.action {
	case actionBlock:
		return nil, args.Abort(d.reason)
	case actionDrop:
		return nil, nil
	case actionReplace:
		out := chunk.WithText(d.text)
		return &out, nil
	default:
		return &chunk, nil
	}
}
