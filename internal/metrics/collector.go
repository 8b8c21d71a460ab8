// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/types"
)

// 块处理结果
const (
	OutcomePassed     = "passed"
	OutcomeReplaced   = "replaced"
	OutcomeSuppressed = "suppressed"
	OutcomeFault      = "fault"
	OutcomeAborted    = "aborted"
)

// 检测调用状态
const (
	DetectorOK      = "ok"
	DetectorError   = "error"
	DetectorCached  = "cached"
	DetectorLimited = "limited"
)

// 运行结束状态
const (
	RunCompleted = "completed"
	RunTripwire  = "tripwire"
	RunError     = "error"
	RunCancelled = "cancelled"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil Collector 的所有 Record 方法都是空操作。
type Collector struct {
	// 处理器链指标
	chunksTotal    *prometheus.CounterVec
	hookDuration   *prometheus.HistogramVec
	faultsTotal    *prometheus.CounterVec
	tripwiresTotal *prometheus.CounterVec

	// 检测器指标
	detectorCalls    *prometheus.CounterVec
	detectorDuration *prometheus.HistogramVec

	// 运行指标
	runsTotal       *prometheus.CounterVec
	runTokens       *prometheus.CounterVec
	consumerBlocked prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器；reg 为 nil 时注册到默认 Registry
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.chunksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_chunks_total",
			Help:      "Chunks seen by stream processors, by outcome",
		},
		[]string{"processor", "outcome"},
	)

	c.hookDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processor_hook_duration_seconds",
			Help:      "Processor hook latency in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"processor", "hook"},
	)

	c.faultsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_faults_total",
			Help:      "Recovered processor faults",
		},
		[]string{"processor", "hook"},
	)

	c.tripwiresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_tripwires_total",
			Help:      "Runs aborted by a processor",
		},
		[]string{"processor", "hook"},
	)

	c.detectorCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_calls_total",
			Help:      "Secondary detector calls, by status",
		},
		[]string{"detector", "status"},
	)

	c.detectorDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_call_duration_seconds",
			Help:      "Secondary detector call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"detector"},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs, by terminal status",
		},
		[]string{"status"},
	)

	c.runTokens = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_tokens_total",
			Help:      "Tokens aggregated from finished runs",
		},
		[]string{"kind"},
	)

	c.consumerBlocked = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_backpressure_waits_total",
			Help:      "Producer waits caused by slow stream consumers",
		},
	)

	return c
}

// =============================================================================
// 🔗 处理器链指标记录
// =============================================================================

// RecordChunk 记录流处理器对块的处理结果
func (c *Collector) RecordChunk(processor, outcome string) {
	if c == nil {
		return
	}
	c.chunksTotal.WithLabelValues(processor, outcome).Inc()
}

// RecordHook 记录钩子耗时
func (c *Collector) RecordHook(processor, hook string, duration time.Duration) {
	if c == nil {
		return
	}
	c.hookDuration.WithLabelValues(processor, hook).Observe(duration.Seconds())
}

// RecordFault 记录被恢复的处理器故障
func (c *Collector) RecordFault(processor, hook string) {
	if c == nil {
		return
	}
	c.faultsTotal.WithLabelValues(processor, hook).Inc()
}

// RecordTripwire 记录处理器中止
func (c *Collector) RecordTripwire(processor, hook string) {
	if c == nil {
		return
	}
	c.tripwiresTotal.WithLabelValues(processor, hook).Inc()
}

// =============================================================================
// 🔍 检测器指标记录
// =============================================================================

// RecordDetectorCall 记录二级检测调用
func (c *Collector) RecordDetectorCall(detector, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.detectorCalls.WithLabelValues(detector, status).Inc()
	if status == DetectorOK || status == DetectorError {
		c.detectorDuration.WithLabelValues(detector).Observe(duration.Seconds())
	}
}

// =============================================================================
// 🏁 运行指标记录
// =============================================================================

// RecordRun 记录运行结束状态与用量
func (c *Collector) RecordRun(status string, usage types.Usage) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runTokens.WithLabelValues("input").Add(float64(usage.InputTokens))
	c.runTokens.WithLabelValues("output").Add(float64(usage.OutputTokens))
	c.runTokens.WithLabelValues("reasoning").Add(float64(usage.ReasoningTokens))
	c.runTokens.WithLabelValues("cached_input").Add(float64(usage.CachedInputTokens))
}

// RecordBackpressure 记录生产者因慢消费者等待的次数
func (c *Collector) RecordBackpressure(waits int64) {
	if c == nil || waits <= 0 {
		return
	}
	c.consumerBlocked.Add(float64(waits))
}
