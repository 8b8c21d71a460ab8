package moderation

import "time"

// OpenAIConfig OpenAI 审核配置
type OpenAIConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries" env:"MAX_RETRIES"`
}

// DefaultOpenAIConfig 返回默认配置
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "omni-moderation-latest",
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}
}
