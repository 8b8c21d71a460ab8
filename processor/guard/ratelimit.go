package guard

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig 检测调用限流配置
type RateLimitConfig struct {
	RPS   float64 `json:"rps" yaml:"rps"`
	Burst int     `json:"burst" yaml:"burst"`
	// Wait 为 true 时等待令牌，否则立即返回 ErrDetectorUnavailable
	Wait bool `json:"wait" yaml:"wait"`
}

// RateLimitedDetector 限制二级检测调用速率
type RateLimitedDetector struct {
	inner   Detector
	limiter *rate.Limiter
	wait    bool
}

// NewRateLimitedDetector 创建限流检测器
func NewRateLimitedDetector(inner Detector, cfg RateLimitConfig) *RateLimitedDetector {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedDetector{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		wait:    cfg.Wait,
	}
}

func (d *RateLimitedDetector) Name() string { return d.inner.Name() }

func (d *RateLimitedDetector) Detect(ctx context.Context, req DetectRequest) (*Detection, error) {
	if d.wait {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	} else if !d.limiter.Allow() {
		return nil, ErrDetectorUnavailable
	}
	return d.inner.Detect(ctx, req)
}
