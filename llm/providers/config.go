package providers

import "time"

// BaseProviderConfig Provider 共享的基础配置字段
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// OpenAIConfig OpenAI Provider 配置
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Organization       string `json:"organization,omitempty" yaml:"organization,omitempty" env:"ORGANIZATION"`
	MaxRetries         int    `json:"max_retries" yaml:"max_retries" env:"MAX_RETRIES"`
}

// DefaultOpenAIConfig 返回默认配置
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseProviderConfig: BaseProviderConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		MaxRetries: 2,
	}
}

// ChooseModel 请求模型优先，其次配置模型，最后兜底模型
func ChooseModel(reqModel, cfgModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if cfgModel != "" {
		return cfgModel
	}
	return fallback
}
