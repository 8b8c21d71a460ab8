package guard

import (
	"context"
	"strings"

	"github.com/BaSui01/agentstream/llm/moderation"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// DefaultModerationName 默认名称
const DefaultModerationName = "moderation"

// ModerationProcessor 内容审核处理器，作用于输入、输出流与结果
type ModerationProcessor struct {
	*guard
}

// DefaultModerationConfig 默认审核配置：block，阈值 0.5
func DefaultModerationConfig() Config {
	return Config{}.withDefaults(DefaultModerationName, StrategyBlock)
}

// NewModerationProcessor 创建审核处理器
func NewModerationProcessor(cfg Config, det Detector, opts ...Option) (*ModerationProcessor, error) {
	g, err := newGuard("moderation", cfg.withDefaults(DefaultModerationName, StrategyBlock), det,
		"Content flagged by moderation", opts)
	if err != nil {
		return nil, err
	}
	return &ModerationProcessor{guard: g}, nil
}

func (p *ModerationProcessor) ProcessInput(ctx context.Context, args processor.InputArgs) ([]types.Message, error) {
	return p.processMessages(ctx, KindInput, args.RunID, args.Messages, types.RoleUser, args.Abort)
}

func (p *ModerationProcessor) ProcessOutputStream(ctx context.Context, args processor.StreamArgs) (*stream.Chunk, error) {
	return p.processChunk(ctx, args)
}

func (p *ModerationProcessor) ProcessOutputResult(ctx context.Context, args processor.ResultArgs) ([]types.Message, error) {
	return p.processMessages(ctx, KindResult, args.RunID, args.Messages, types.RoleAssistant, args.Abort)
}

// =============================================================================
// OpenAI moderation 检测器
// =============================================================================

// ModerationDetector 将 moderation.ModerationProvider 适配为 Detector
type ModerationDetector struct {
	provider   moderation.ModerationProvider
	model      string
	categories map[string]bool
}

// NewModerationDetector 创建审核检测器；categories 为空时保留全部类别
func NewModerationDetector(provider moderation.ModerationProvider, model string, categories ...string) *ModerationDetector {
	d := &ModerationDetector{provider: provider, model: model}
	if len(categories) > 0 {
		d.categories = make(map[string]bool, len(categories))
		for _, c := range categories {
			d.categories[c] = true
		}
	}
	return d
}

func (d *ModerationDetector) Name() string { return d.provider.Name() }

// Detect 上下文窗口与当前文本拼接后作为单条输入提交
func (d *ModerationDetector) Detect(ctx context.Context, req DetectRequest) (*Detection, error) {
	input := req.Text
	if len(req.Context) > 0 {
		input = strings.Join(req.Context, "") + req.Text
	}
	resp, err := d.provider.Moderate(ctx, &moderation.ModerationRequest{Input: []string{input}, Model: d.model})
	if err != nil {
		return nil, err
	}

	out := &Detection{Scores: make(map[string]float64)}
	for _, r := range resp.Results {
		for cat, score := range r.Scores {
			if d.categories != nil && !d.categories[cat] {
				continue
			}
			if score > out.Scores[cat] {
				out.Scores[cat] = score
			}
		}
	}
	return out, nil
}
