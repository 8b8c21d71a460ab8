package guard

import (
	"context"
	"errors"

	"github.com/BaSui01/agentstream/llm/circuitbreaker"
)

// BreakerDetector 熔断包装：下游持续失败时快速返回 ErrDetectorUnavailable，
// 由防护处理器 fail-open 放行
type BreakerDetector struct {
	inner   Detector
	breaker *circuitbreaker.Breaker
}

// NewBreakerDetector 创建熔断检测器
func NewBreakerDetector(inner Detector, b *circuitbreaker.Breaker) *BreakerDetector {
	return &BreakerDetector{inner: inner, breaker: b}
}

func (d *BreakerDetector) Name() string { return d.inner.Name() }

func (d *BreakerDetector) Detect(ctx context.Context, req DetectRequest) (*Detection, error) {
	det, err := circuitbreaker.Do(ctx, d.breaker, func(ctx context.Context) (*Detection, error) {
		return d.inner.Detect(ctx, req)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
		return nil, ErrDetectorUnavailable
	}
	return det, err
}
