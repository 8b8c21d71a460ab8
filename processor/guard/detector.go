package guard

import (
	"context"
	"errors"
	"sort"
)

// DefaultThreshold 默认判定阈值
const DefaultThreshold = 0.5

// ErrDetectorUnavailable 检测器暂不可用（限流、熔断）
var ErrDetectorUnavailable = errors.New("guard: detector unavailable")

// Kind 被检测内容所处的钩子
type Kind string

const (
	KindInput  Kind = "input"
	KindStream Kind = "stream"
	KindResult Kind = "result"
)

// Span 文本中的一处检测命中，Start/End 为 Text 内的字节偏移，区间左闭右开。
// Score 取值 0-1，确定性检测器填 1；0 表示无置信度，永远不会达到阈值。
type Span struct {
	Type  string  `json:"type"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score,omitempty"`
}

// Threshold 返回阈值指针，用于在 Config 中显式设置阈值（包括 0）
func Threshold(v float64) *float64 { return &v }

// reaches 分数为正且达到阈值。阈值 0 表示任何正分数都命中。
func reaches(score, threshold float64) bool {
	return score > 0 && score >= threshold
}

// Detection 检测结果
type Detection struct {
	// Scores 类别置信度，取值 0-1
	Scores map[string]float64 `json:"scores,omitempty"`
	// Spans 片段级命中
	Spans []Span `json:"spans,omitempty"`
	// RedactedText 检测器给出的已脱敏文本，可为空
	RedactedText string `json:"redacted_text,omitempty"`
	// Reason 检测器给出的说明
	Reason string `json:"reason,omitempty"`
}

// Flagged 返回分数为正且达到阈值的类别（已排序、去重）
func (d *Detection) Flagged(threshold float64) []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]bool)
	for cat, s := range d.Scores {
		if reaches(s, threshold) {
			seen[cat] = true
		}
	}
	for _, sp := range d.Spans {
		if reaches(sp.Score, threshold) {
			seen[sp.Type] = true
		}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// SpansAbove 返回达到阈值的片段
func (d *Detection) SpansAbove(threshold float64) []Span {
	if d == nil {
		return nil
	}
	var out []Span
	for _, sp := range d.Spans {
		if reaches(sp.Score, threshold) {
			out = append(out, sp)
		}
	}
	return out
}

// DetectRequest 检测请求
type DetectRequest struct {
	Kind Kind
	Text string
	// Context 当前块之前的文本窗口，按时间顺序；只作为上下文，不参与片段偏移
	Context []string
}

// Detector 内容检测器
type Detector interface {
	Name() string
	Detect(ctx context.Context, req DetectRequest) (*Detection, error)
}

// DetectorFunc 函数适配器
type DetectorFunc struct {
	ID string
	Fn func(ctx context.Context, req DetectRequest) (*Detection, error)
}

func (f DetectorFunc) Name() string { return f.ID }

func (f DetectorFunc) Detect(ctx context.Context, req DetectRequest) (*Detection, error) {
	return f.Fn(ctx, req)
}
