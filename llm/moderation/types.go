package moderation

import (
	"context"
	"time"
)

// ModerationProvider 内容审核提供者
type ModerationProvider interface {
	Name() string
	Moderate(ctx context.Context, req *ModerationRequest) (*ModerationResponse, error)
}

// ModerationRequest 审核请求
type ModerationRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

// ModerationResponse 审核响应
type ModerationResponse struct {
	Provider  string             `json:"provider"`
	Model     string             `json:"model"`
	Results   []ModerationResult `json:"results"`
	CreatedAt time.Time          `json:"created_at"`
}

// 审核类别，取值与 OpenAI moderation API 的类别键一致
const (
	CategoryHarassment            = "harassment"
	CategoryHarassmentThreatening = "harassment/threatening"
	CategoryHate                  = "hate"
	CategoryHateThreatening       = "hate/threatening"
	CategoryIllicit               = "illicit"
	CategoryIllicitViolent        = "illicit/violent"
	CategorySelfHarm              = "self-harm"
	CategorySelfHarmInstructions  = "self-harm/instructions"
	CategorySelfHarmIntent        = "self-harm/intent"
	CategorySexual                = "sexual"
	CategorySexualMinors          = "sexual/minors"
	CategoryViolence              = "violence"
	CategoryViolenceGraphic       = "violence/graphic"
)

// DefaultCategories 返回全部已知类别
func DefaultCategories() []string {
	return []string{
		CategoryHarassment, CategoryHarassmentThreatening,
		CategoryHate, CategoryHateThreatening,
		CategoryIllicit, CategoryIllicitViolent,
		CategorySelfHarm, CategorySelfHarmInstructions, CategorySelfHarmIntent,
		CategorySexual, CategorySexualMinors,
		CategoryViolence, CategoryViolenceGraphic,
	}
}

// ModerationResult 单条输入的审核结果
type ModerationResult struct {
	Flagged    bool               `json:"flagged"`
	Categories map[string]bool    `json:"categories"`
	Scores     map[string]float64 `json:"scores"`
}

// Score 返回类别分数，未知类别返回 0
func (r ModerationResult) Score(category string) float64 {
	return r.Scores[category]
}

// Top 返回分数最高的类别
func (r ModerationResult) Top() (string, float64) {
	var (
		best  string
		score float64
	)
	for _, c := range DefaultCategories() {
		if s, ok := r.Scores[c]; ok && s > score {
			best, score = c, s
		}
	}
	return best, score
}
