package types

// Usage represents token consumption statistics.
// TotalTokens is always derived from the other fields, never trusted from upstream.
type Usage struct {
	InputTokens       int `json:"input_tokens,omitempty"`
	OutputTokens      int `json:"output_tokens,omitempty"`
	ReasoningTokens   int `json:"reasoning_tokens,omitempty"`
	CachedInputTokens int `json:"cached_input_tokens,omitempty"`
	TotalTokens       int `json:"total_tokens,omitempty"`
}

// Add adds another Usage to this one and recomputes TotalTokens.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningTokens += other.ReasoningTokens
	u.CachedInputTokens += other.CachedInputTokens
	u.Recompute()
}

// Recompute sets TotalTokens from the non-cached counters.
// Cached input tokens are a subset of InputTokens and never counted twice.
func (u *Usage) Recompute() {
	u.TotalTokens = u.InputTokens + u.OutputTokens + u.ReasoningTokens
}

// IsZero reports whether no tokens were recorded.
func (u Usage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 && u.ReasoningTokens == 0 && u.CachedInputTokens == 0
}
