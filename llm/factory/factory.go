package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/config"
	"github.com/BaSui01/agentstream/llm"
	"github.com/BaSui01/agentstream/llm/moderation"
	"github.com/BaSui01/agentstream/llm/providers"
	"github.com/BaSui01/agentstream/llm/providers/openai"
)

// SupportedProviders 返回可用的 Provider 名称
func SupportedProviders() []string {
	return []string{"openai"}
}

// NewProviderFromConfig 按 cfg.Provider 创建 llm.Provider。
// openai 同样适用于 OpenAI 兼容端点（设置 BaseURL 即可）。
func NewProviderFromConfig(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "openai", "":
		oc := providers.OpenAIConfig{
			BaseProviderConfig: providers.BaseProviderConfig{
				APIKey:  cfg.APIKey,
				BaseURL: cfg.BaseURL,
				Model:   cfg.Model,
				Timeout: cfg.Timeout,
			},
			Organization: cfg.Organization,
			MaxRetries:   cfg.MaxRetries,
		}
		return openai.NewProvider(oc, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// NewModerationFromConfig 创建审核 Provider，复用二级模型的凭据与端点
func NewModerationFromConfig(cfg config.LLMConfig, logger *zap.Logger) (moderation.ModerationProvider, error) {
	switch cfg.Provider {
	case "openai", "":
		mc := moderation.DefaultOpenAIConfig()
		mc.APIKey = cfg.APIKey
		if cfg.BaseURL != "" {
			mc.BaseURL = cfg.BaseURL
		}
		if cfg.Timeout > 0 {
			mc.Timeout = cfg.Timeout
		}
		mc.MaxRetries = cfg.MaxRetries
		return moderation.NewOpenAIProvider(mc, logger), nil
	default:
		return nil, fmt.Errorf("provider %s has no moderation endpoint", cfg.Provider)
	}
}
