package guard

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// MultiDetector 并行调用多个检测器并合并结果：类别取最高分，片段合并。
// 任一检测器失败则整体失败，由处理器 fail-open。
type MultiDetector struct {
	detectors []Detector
}

// NewMultiDetector 创建组合检测器
func NewMultiDetector(detectors ...Detector) *MultiDetector {
	return &MultiDetector{detectors: detectors}
}

func (m *MultiDetector) Name() string {
	names := make([]string, len(m.detectors))
	for i, d := range m.detectors {
		names[i] = d.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m *MultiDetector) Detect(ctx context.Context, req DetectRequest) (*Detection, error) {
	results := make([]*Detection, len(m.detectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range m.detectors {
		g.Go(func() error {
			det, err := d.Detect(gctx, req)
			if err != nil {
				return err
			}
			results[i] = det
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Detection{Scores: make(map[string]float64)}
	var reasons []string
	for _, det := range results {
		if det == nil {
			continue
		}
		for cat, s := range det.Scores {
			if s > out.Scores[cat] {
				out.Scores[cat] = s
			}
		}
		out.Spans = append(out.Spans, det.Spans...)
		if det.Reason != "" {
			reasons = append(reasons, det.Reason)
		}
	}
	// 各检测器的脱敏文本无法合并，统一由片段重新生成
	out.Reason = strings.Join(reasons, "; ")
	return out, nil
}
