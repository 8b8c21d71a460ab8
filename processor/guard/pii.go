package guard

import (
	"context"
	"regexp"
	"sort"

	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// DefaultPIIName 默认名称
const DefaultPIIName = "pii-detector"

// PII 类型
const (
	PIIEmail      = "email"
	PIIPhone      = "phone"
	PIICreditCard = "credit-card"
	PIISSN        = "ssn"
	PIIIPAddress  = "ip-address"
	PIIAPIKey     = "api-key"
)

// PIIProcessor 敏感信息处理器，作用于输入、输出流与结果
type PIIProcessor struct {
	*guard
}

// DefaultPIIConfig 默认 PII 配置：redact，占位符替换
func DefaultPIIConfig() Config {
	return Config{}.withDefaults(DefaultPIIName, StrategyRedact)
}

// NewPIIProcessor 创建 PII 处理器；det 为 nil 时使用 RegexPIIDetector
func NewPIIProcessor(cfg Config, det Detector, opts ...Option) (*PIIProcessor, error) {
	if det == nil {
		det = NewRegexPIIDetector()
	}
	g, err := newGuard("pii", cfg.withDefaults(DefaultPIIName, StrategyRedact), det, "PII detected", opts)
	if err != nil {
		return nil, err
	}
	return &PIIProcessor{guard: g}, nil
}

func (p *PIIProcessor) ProcessInput(ctx context.Context, args processor.InputArgs) ([]types.Message, error) {
	return p.processMessages(ctx, KindInput, args.RunID, args.Messages, types.RoleUser, args.Abort)
}

func (p *PIIProcessor) ProcessOutputStream(ctx context.Context, args processor.StreamArgs) (*stream.Chunk, error) {
	return p.processChunk(ctx, args)
}

func (p *PIIProcessor) ProcessOutputResult(ctx context.Context, args processor.ResultArgs) ([]types.Message, error) {
	return p.processMessages(ctx, KindResult, args.RunID, args.Messages, types.RoleAssistant, args.Abort)
}

// =============================================================================
// 正则检测器
// =============================================================================

type piiPattern struct {
	typ   string
	re    *regexp.Regexp
	check func(string) bool
}

var builtinPII = []piiPattern{
	{typ: PIIEmail, re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{typ: PIICreditCard, re: regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`), check: luhn},
	{typ: PIISSN, re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{typ: PIIPhone, re: regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\b\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`)},
	{typ: PIIIPAddress, re: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)},
	{typ: PIIAPIKey, re: regexp.MustCompile(`\b(?:sk|pk|rk)-[A-Za-z0-9_\-]{16,}|\bAKIA[0-9A-Z]{16}\b`)},
}

// RegexPIIDetector 基于正则的本地 PII 检测器，命中即确定（Score 1）
type RegexPIIDetector struct {
	patterns []piiPattern
}

// NewRegexPIIDetector 创建检测器；kinds 为空时启用全部内置类型
func NewRegexPIIDetector(kinds ...string) *RegexPIIDetector {
	if len(kinds) == 0 {
		return &RegexPIIDetector{patterns: builtinPII}
	}
	enabled := make(map[string]bool, len(kinds))
	for _, t := range kinds {
		enabled[t] = true
	}
	d := &RegexPIIDetector{}
	for _, p := range builtinPII {
		if enabled[p.typ] {
			d.patterns = append(d.patterns, p)
		}
	}
	return d
}

// AddPattern 追加自定义类型
func (d *RegexPIIDetector) AddPattern(typ string, re *regexp.Regexp) *RegexPIIDetector {
	d.patterns = append(d.patterns, piiPattern{typ: typ, re: re})
	return d
}

func (d *RegexPIIDetector) Name() string { return "regex-pii" }

// Detect 只检测当前文本，忽略上下文窗口
func (d *RegexPIIDetector) Detect(_ context.Context, req DetectRequest) (*Detection, error) {
	out := &Detection{}
	for _, p := range d.patterns {
		for _, loc := range p.re.FindAllStringIndex(req.Text, -1) {
			if p.check != nil && !p.check(req.Text[loc[0]:loc[1]]) {
				continue
			}
			out.Spans = append(out.Spans, Span{Type: p.typ, Start: loc[0], End: loc[1], Score: 1})
			if out.Scores == nil {
				out.Scores = make(map[string]float64)
			}
			out.Scores[p.typ] = 1
		}
	}
	sort.SliceStable(out.Spans, func(i, j int) bool { return out.Spans[i].Start < out.Spans[j].Start })
	return out, nil
}

// luhn 校验卡号
func luhn(s string) bool {
	sum, n := 0, 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		v := int(c - '0')
		if double {
			v *= 2
			if v > 9 {
				v -= 9
			}
		}
		sum += v
		double = !double
		n++
	}
	return n >= 13 && sum%10 == 0
}
