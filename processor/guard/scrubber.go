package guard

import (
	"context"
	"strings"

	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// DefaultScrubberName 默认名称
const DefaultScrubberName = "system-prompt-scrubber"

// CategorySystemPrompt 系统提示泄露类别
const CategorySystemPrompt = "system-prompt"

// SystemPromptScrubber 清除输出中泄露的系统提示，只作用于输出流与结果
type SystemPromptScrubber struct {
	*guard
}

// DefaultScrubberConfig 默认配置：redact
func DefaultScrubberConfig() Config {
	return Config{}.withDefaults(DefaultScrubberName, StrategyRedact)
}

// NewSystemPromptScrubber 创建系统提示清除器
func NewSystemPromptScrubber(cfg Config, det Detector, opts ...Option) (*SystemPromptScrubber, error) {
	g, err := newGuard("system_prompt_scrubber", cfg.withDefaults(DefaultScrubberName, StrategyRedact), det,
		"System prompt leak detected", opts)
	if err != nil {
		return nil, err
	}
	return &SystemPromptScrubber{guard: g}, nil
}

func (p *SystemPromptScrubber) ProcessOutputStream(ctx context.Context, args processor.StreamArgs) (*stream.Chunk, error) {
	return p.processChunk(ctx, args)
}

func (p *SystemPromptScrubber) ProcessOutputResult(ctx context.Context, args processor.ResultArgs) ([]types.Message, error) {
	return p.processMessages(ctx, KindResult, args.RunID, args.Messages, types.RoleAssistant, args.Abort)
}

// =============================================================================
// 系统提示片段检测器
// =============================================================================

// DefaultMinFragment 参与匹配的最短片段（字节）
const DefaultMinFragment = 24

// SystemPromptDetector 将系统提示切分为句子片段，在输出中查找原文出现。
// 上下文窗口与当前文本拼接后匹配，跨块泄露只标记落在当前文本内的部分。
type SystemPromptDetector struct {
	fragments []string
}

// NewSystemPromptDetector 创建检测器；minFragment <= 0 时使用默认值
func NewSystemPromptDetector(prompts []string, minFragment int) *SystemPromptDetector {
	if minFragment <= 0 {
		minFragment = DefaultMinFragment
	}
	seen := make(map[string]bool)
	d := &SystemPromptDetector{}
	for _, prompt := range prompts {
		for _, frag := range splitFragments(prompt) {
			if len(frag) < minFragment || seen[frag] {
				continue
			}
			seen[frag] = true
			d.fragments = append(d.fragments, frag)
		}
	}
	return d
}

func splitFragments(prompt string) []string {
	var out []string
	for _, line := range strings.Split(prompt, "\n") {
		start := 0
		for i := 0; i < len(line); i++ {
			switch line[i] {
			case '.', '!', '?', ';':
				out = append(out, strings.TrimSpace(line[start:i+1]))
				start = i + 1
			}
		}
		if rest := strings.TrimSpace(line[start:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// Fragments 返回参与匹配的片段
func (d *SystemPromptDetector) Fragments() []string { return d.fragments }

func (d *SystemPromptDetector) Name() string { return "system-prompt-fragments" }

func (d *SystemPromptDetector) Detect(_ context.Context, req DetectRequest) (*Detection, error) {
	prefix := strings.Join(req.Context, "")
	haystack := prefix + req.Text
	offset := len(prefix)

	out := &Detection{}
	for _, frag := range d.fragments {
		from := 0
		for {
			i := strings.Index(haystack[from:], frag)
			if i < 0 {
				break
			}
			start, end := from+i, from+i+len(frag)
			from = end
			if end <= offset {
				continue
			}
			if start < offset {
				start = offset
			}
			out.Spans = append(out.Spans, Span{Type: CategorySystemPrompt, Start: start - offset, End: end - offset, Score: 1})
		}
	}
	if len(out.Spans) > 0 {
		out.Scores = map[string]float64{CategorySystemPrompt: 1}
	}
	return out, nil
}
