package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/agentstream/config"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/processor/batch"
	"github.com/BaSui01/agentstream/processor/guard"
	"github.com/BaSui01/agentstream/processor/structured"
	"github.com/BaSui01/agentstream/processor/tokenlimit"
	"github.com/BaSui01/agentstream/schema"
)

// 检测器名称
const (
	DetectorOpenAI    = "openai"
	DetectorLLM       = "llm"
	DetectorRegex     = "regex"
	DetectorFragments = "fragments"
)

var errNoProvider = errors.New("no llm provider configured")

// =============================================================================
// 令牌限制 / 批处理
// =============================================================================

func newTokenLimiter(pc config.ProcessorConfig, env *Env) (processor.Processor, error) {
	cfg := tokenlimit.DefaultConfig()
	if err := pc.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.Name = pc.DisplayName()
	return tokenlimit.New(cfg, tokenlimit.WithLogger(env.logger()))
}

func newBatcher(pc config.ProcessorConfig, env *Env) (processor.Processor, error) {
	cfg := batch.DefaultConfig()
	if err := pc.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.Name = pc.DisplayName()
	return batch.New(cfg, env.logger())
}

// =============================================================================
// 防护处理器
// =============================================================================

// guardOptions moderation / pii / system-prompt 的公共选项
type guardOptions struct {
	guard.Config `yaml:",inline"`

	// Detectors 检测器列表，多个时并行合并
	Detectors  []string `yaml:"detectors"`
	Model      string   `yaml:"model"`
	Categories []string `yaml:"categories"`

	// pii
	Kinds []string `yaml:"kinds"`

	// system-prompt
	Prompts     []string `yaml:"prompts"`
	MinFragment int      `yaml:"min_fragment"`
}

func decodeGuard(pc config.ProcessorConfig, defaultDetector string) (guardOptions, error) {
	var opts guardOptions
	if err := pc.Decode(&opts); err != nil {
		return opts, err
	}
	opts.Name = pc.DisplayName()
	if len(opts.Detectors) == 0 {
		opts.Detectors = []string{defaultDetector}
	}
	return opts, nil
}

func (e *Env) guardOptions() []guard.Option {
	return []guard.Option{guard.WithLogger(e.logger()), guard.WithMetrics(e.Metrics)}
}

// combine 单个检测器直接返回，多个时用 MultiDetector 合并
func combine(dets []guard.Detector) guard.Detector {
	if len(dets) == 1 {
		return dets[0]
	}
	return guard.NewMultiDetector(dets...)
}

func (e *Env) llmDetector(cfg guard.LLMDetectorConfig, categories []string) (guard.Detector, error) {
	if e.Provider == nil {
		return nil, errNoProvider
	}
	if len(categories) > 0 {
		cfg.Categories = categories
	}
	det, err := guard.NewLLMDetector(e.Provider, cfg)
	if err != nil {
		return nil, err
	}
	return e.WrapDetector(det), nil
}

func newModeration(pc config.ProcessorConfig, env *Env) (processor.Processor, error) {
	opts, err := decodeGuard(pc, DetectorOpenAI)
	if err != nil {
		return nil, err
	}
	dets := make([]guard.Detector, 0, len(opts.Detectors))
	for _, name := range opts.Detectors {
		switch name {
		case DetectorOpenAI:
			if env.Moderation == nil {
				return nil, errors.New("no moderation provider configured")
			}
			dets = append(dets, env.WrapDetector(guard.NewModerationDetector(env.Moderation, opts.Model, opts.Categories...)))
		case DetectorLLM:
			det, err := env.llmDetector(guard.ModerationLLMConfig(opts.Model), opts.Categories)
			if err != nil {
				return nil, err
			}
			dets = append(dets, det)
		default:
			return nil, fmt.Errorf("unknown moderation detector %q", name)
		}
	}
	return guard.NewModerationProcessor(opts.Config, combine(dets), env.guardOptions()...)
}

func newPII(pc config.ProcessorConfig, env *Env) (processor.Processor, error) {
	opts, err := decodeGuard(pc, DetectorRegex)
	if err != nil {
		return nil, err
	}
	dets := make([]guard.Detector, 0, len(opts.Detectors))
	for _, name := range opts.Detectors {
		switch name {
		case DetectorRegex:
			// 本地检测，不做缓存与限流
			dets = append(dets, guard.NewRegexPIIDetector(opts.Kinds...))
		case DetectorLLM:
			det, err := env.llmDetector(guard.PIILLMConfig(opts.Model), opts.Categories)
			if err != nil {
				return nil, err
			}
			dets = append(dets, det)
		default:
			return nil, fmt.Errorf("unknown pii detector %q", name)
		}
	}
	return guard.NewPIIProcessor(opts.Config, combine(dets), env.guardOptions()...)
}

func newSystemPrompt(pc config.ProcessorConfig, env *Env) (processor.Processor, error) {
	opts, err := decodeGuard(pc, DetectorFragments)
	if err != nil {
		return nil, err
	}
	if len(opts.Prompts) == 0 {
		return nil, errors.New("system-prompt requires at least one prompt")
	}
	dets := make([]guard.Detector, 0, len(opts.Detectors))
	for _, name := range opts.Detectors {
		switch name {
		case DetectorFragments:
			dets = append(dets, guard.NewSystemPromptDetector(opts.Prompts, opts.MinFragment))
		case DetectorLLM:
			det, err := env.llmDetector(guard.PromptLeakLLMConfig(opts.Model, strings.Join(opts.Prompts, "\n")), nil)
			if err != nil {
				return nil, err
			}
			dets = append(dets, det)
		default:
			return nil, fmt.Errorf("unknown system-prompt detector %q", name)
		}
	}
	return guard.NewSystemPromptScrubber(opts.Config, combine(dets), env.guardOptions()...)
}

// =============================================================================
// 结构化输出
// =============================================================================

type structuredOptions struct {
	structured.Config `yaml:",inline"`

	// Schema 以 YAML 书写的 JSON Schema
	Schema map[string]any `yaml:"schema"`
}

func newStructuredOutput(pc config.ProcessorConfig, env *Env) (processor.Processor, error) {
	if env.Provider == nil {
		return nil, errNoProvider
	}
	var opts structuredOptions
	if err := pc.Decode(&opts); err != nil {
		return nil, err
	}
	if len(opts.Schema) == 0 {
		return nil, errors.New("structured-output requires a schema")
	}
	data, err := json.Marshal(opts.Schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	s, err := schema.Parse(data)
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	cfg.Name = pc.DisplayName()
	cfg.Schema = s
	return structured.New(cfg, env.Provider, env.logger())
}
