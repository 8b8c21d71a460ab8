package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/llm"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls in half-open state")
)

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int `json:"threshold" yaml:"threshold"`

	// Timeout 单次调用超时时间
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// ResetTimeout 熔断恢复等待时间（从 Open -> HalfOpen）
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout"`

	// HalfOpenMaxCalls 半开状态下允许的最大并发试探数
	HalfOpenMaxCalls int `json:"half_open_max_calls" yaml:"half_open_max_calls"`

	// OnStateChange 状态变更回调，在持锁之外同步调用
	OnStateChange func(from, to State) `json:"-" yaml:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		Timeout:          10 * time.Second,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker 熔断器
type Breaker struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu                sync.Mutex
	state             State
	failureCount      int
	openedAt          time.Time
	halfOpenCallCount int
}

// New 创建熔断器；非正的参数使用默认值
func New(name string, config Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig()
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = def.ResetTimeout
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("breaker", name)),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Call 执行调用，熔断时直接返回 ErrCircuitOpen
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do 带返回值的调用
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.beforeCall(); err != nil {
		return zero, err
	}

	callCtx := ctx
	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	v, err := fn(callCtx)
	switch {
	case err == nil:
		b.afterCall(true)
		return v, nil
	case ctx.Err() != nil:
		// 调用方取消不反映下游健康状况
		b.release()
		return zero, err
	case errors.Is(err, context.DeadlineExceeded):
		b.afterCall(false)
		return zero, fmt.Errorf("call timed out: %w", err)
	default:
		b.afterCall(IsClientError(err))
		return zero, err
	}
}

// IsClientError 报告错误是否为客户端错误（不计入熔断失败）
func IsClientError(err error) bool {
	var le *llm.Error
	if !errors.As(err, &le) {
		return false
	}
	if le.Retryable {
		return false
	}
	switch le.Code {
	case llm.ErrInvalidRequest, llm.ErrUnauthorized, llm.ErrContentFiltered:
		return true
	}
	return le.HTTPStatus >= http.StatusBadRequest && le.HTTPStatus < http.StatusInternalServerError &&
		le.HTTPStatus != http.StatusTooManyRequests
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	var changed bool
	var from State
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, StateHalfOpen)
		}
	}()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.ResetTimeout {
			return ErrCircuitOpen
		}
		from, changed = b.state, true
		b.state = StateHalfOpen
		b.halfOpenCallCount = 1
		return nil
	case StateHalfOpen:
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenCallCount++
		return nil
	default:
		return nil
	}
}

// release 归还半开试探名额，不改变状态
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenCallCount > 0 {
		b.halfOpenCallCount--
	}
}

func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	from := b.state
	if success {
		b.failureCount = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.halfOpenCallCount = 0
		}
	} else {
		b.failureCount++
		switch b.state {
		case StateClosed:
			if b.failureCount >= b.config.Threshold {
				b.state = StateOpen
				b.openedAt = b.now()
			}
		case StateHalfOpen:
			b.state = StateOpen
			b.openedAt = b.now()
			b.halfOpenCallCount = 0
		}
	}
	to := b.state
	failures := b.failureCount
	b.mu.Unlock()

	if from != to {
		if to == StateOpen {
			b.logger.Warn("circuit opened", zap.Int("failure_count", failures))
		} else {
			b.logger.Info("circuit state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		}
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}

// Name 熔断器名称
func (b *Breaker) Name() string { return b.name }

// State 获取当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复到关闭状态
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenCallCount = 0
	b.mu.Unlock()

	b.logger.Info("circuit reset", zap.Stringer("from", from))
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}
