package processor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/internal/metrics"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

const tracerName = "github.com/BaSui01/agentstream/processor"

// Config 处理器链配置，三个列表各自按顺序执行
type Config struct {
	Input        []Processor
	OutputStream []Processor
	OutputResult []Processor
}

// Option 配置 Runner
type Option func(*Runner)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithTracerProvider 设置 TracerProvider，默认使用全局 provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// Runner 处理器链引擎，可在多次运行间复用；每次运行的状态由 StateRegistry 持有
type Runner struct {
	input  []Processor
	stream []Processor
	result []Processor

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// NewRunner 创建处理器链。同一列表内名称重复或为空时返回错误。
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	for list, procs := range map[string][]Processor{
		HookInput:        cfg.Input,
		HookOutputStream: cfg.OutputStream,
		HookOutputResult: cfg.OutputResult,
	} {
		if err := checkNames(list, procs); err != nil {
			return nil, err
		}
	}

	r := &Runner{
		input:  append([]Processor(nil), cfg.Input...),
		stream: append([]Processor(nil), cfg.OutputStream...),
		result: append([]Processor(nil), cfg.OutputResult...),
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "processor_runner"))
	return r, nil
}

func checkNames(list string, procs []Processor) error {
	seen := make(map[string]struct{}, len(procs))
	for i, p := range procs {
		if p == nil {
			return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("%s processor #%d is nil", list, i))
		}
		name := p.Name()
		if name == "" {
			return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("%s processor #%d has empty name", list, i))
		}
		if _, dup := seen[name]; dup {
			return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("duplicate %s processor name %q", list, name))
		}
		seen[name] = struct{}{}
	}
	return nil
}

// HasStreamProcessors 报告是否配置了流处理器
func (r *Runner) HasStreamProcessors() bool { return len(r.stream) > 0 }

// HasResultProcessors 报告是否配置了结果处理器
func (r *Runner) HasResultProcessors() bool { return len(r.result) > 0 }

// Names 返回各列表的处理器名称
func (r *Runner) Names() (input, outputStream, outputResult []string) {
	names := func(ps []Processor) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name()
		}
		return out
	}
	return names(r.input), names(r.stream), names(r.result)
}

func (r *Runner) startSpan(ctx context.Context, hook, name string) (context.Context, trace.Span) {
	ctx = types.WithProcessorName(ctx, name)
	return r.tracer.Start(ctx, "processor."+hook, trace.WithAttributes(
		attribute.String("processor.name", name),
		attribute.String("processor.hook", hook),
	))
}

// finishSpan 记录钩子结果到 span、日志与指标
func (r *Runner) finishSpan(span trace.Span, hook, name, runID string, start time.Time, tw *TripWire, fault error) {
	r.metrics.RecordHook(name, hook, time.Since(start))
	switch {
	case tw != nil:
		span.SetAttributes(attribute.String("processor.tripwire", tw.Reason))
		r.metrics.RecordTripwire(name, hook)
		r.logger.Info("processor tripwire",
			zap.String("processor", name),
			zap.String("hook", hook),
			zap.String("run_id", runID),
			zap.String("reason", tw.Reason))
	case fault != nil:
		span.RecordError(fault)
		span.SetStatus(codes.Error, fault.Error())
		r.metrics.RecordFault(name, hook)
		r.logger.Warn("processor fault, forwarding original value",
			zap.String("processor", name),
			zap.String("hook", hook),
			zap.String("run_id", runID),
			zap.Error(fault))
	}
	span.End()
}

// ============================================================
// 消息钩子
// ============================================================

// RunInputProcessors 按顺序执行输入钩子。
// 中止时返回 *TripWire，后续处理器不再执行。
func (r *Runner) RunInputProcessors(ctx context.Context, msgs []types.Message) ([]types.Message, error) {
	return r.runMessageHooks(ctx, HookInput, r.input, msgs, func(p Processor) (messageCall, bool) {
		ip, ok := p.(InputProcessor)
		if !ok {
			return nil, false
		}
		return func(ctx context.Context, runID string, cur []types.Message) ([]types.Message, error) {
			return ip.ProcessInput(ctx, NewInputArgs(p.Name(), runID, cur))
		}, true
	})
}

// RunOutputResultProcessors 按顺序执行结果钩子，语义同输入钩子
func (r *Runner) RunOutputResultProcessors(ctx context.Context, msgs []types.Message) ([]types.Message, error) {
	return r.runMessageHooks(ctx, HookOutputResult, r.result, msgs, func(p Processor) (messageCall, bool) {
		rp, ok := p.(ResultProcessor)
		if !ok {
			return nil, false
		}
		return func(ctx context.Context, runID string, cur []types.Message) ([]types.Message, error) {
			return rp.ProcessOutputResult(ctx, NewResultArgs(p.Name(), runID, cur))
		}, true
	})
}

type messageCall func(ctx context.Context, runID string, cur []types.Message) ([]types.Message, error)

func (r *Runner) runMessageHooks(ctx context.Context, hook string, procs []Processor, msgs []types.Message, bind func(Processor) (messageCall, bool)) ([]types.Message, error) {
	runID, _ := types.RunID(ctx)
	current := types.CloneMessages(msgs)

	for _, p := range procs {
		call, ok := bind(p)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hctx, span := r.startSpan(ctx, hook, p.Name())
		input := types.CloneMessages(current)
		start := time.Now()
		out := invokeHook(func() ([]types.Message, error) {
			return call(hctx, runID, input)
		})
		r.finishSpan(span, hook, p.Name(), runID, start, out.tripwire, out.fault)

		if out.tripwire != nil {
			return nil, out.tripwire
		}
		if out.ok() {
			current = out.value
		}
	}
	return current, nil
}

// ============================================================
// 流钩子
// ============================================================

// ChunkResult 单块经过处理器链的结果
type ChunkResult struct {
	// Chunks 按顺序发出的块；为空表示被抑制
	Chunks    []stream.Chunk
	Aborted   bool
	Reason    string
	Processor string
}

// TripWire 返回中止信息
func (c ChunkResult) TripWire() *TripWire {
	if !c.Aborted {
		return nil
	}
	return &TripWire{Reason: c.Reason, Processor: c.Processor}
}

// ProcessChunk 让一个块依次经过所有流处理器
func (r *Runner) ProcessChunk(ctx context.Context, chunk stream.Chunk, reg *StateRegistry) ChunkResult {
	return r.processFrom(ctx, 0, []stream.Chunk{chunk}, reg)
}

// processFrom 从第 from 个流处理器开始处理一组块；Emit 的块同样进入后续处理器
func (r *Runner) processFrom(ctx context.Context, from int, pending []stream.Chunk, reg *StateRegistry) ChunkResult {
	for i := from; i < len(r.stream) && len(pending) > 0; i++ {
		p := r.stream[i]
		sp, ok := p.(StreamProcessor)
		if !ok {
			continue
		}
		name := p.Name()
		st := reg.Get(name)

		var next []stream.Chunk
		for _, c := range pending {
			st.Observe(c)

			var emitted []stream.Chunk
			args := NewStreamArgs(name, c, st, &emitted)
			hctx, span := r.startSpan(ctx, HookOutputStream, name)
			start := time.Now()
			out := invokeHook(func() (*stream.Chunk, error) {
				return sp.ProcessOutputStream(hctx, args)
			})
			r.finishSpan(span, HookOutputStream, name, c.RunID, start, out.tripwire, out.fault)

			switch {
			case out.tripwire != nil:
				r.metrics.RecordChunk(name, metrics.OutcomeAborted)
				return ChunkResult{Aborted: true, Reason: out.tripwire.Reason, Processor: name}
			case out.fault != nil:
				r.metrics.RecordChunk(name, metrics.OutcomeFault)
				next = append(next, emitted...)
				next = append(next, c)
			case out.value == nil:
				r.metrics.RecordChunk(name, metrics.OutcomeSuppressed)
				next = append(next, emitted...)
			default:
				outcome := metrics.OutcomePassed
				if len(emitted) > 0 || !sameChunk(*out.value, c) {
					outcome = metrics.OutcomeReplaced
				}
				r.metrics.RecordChunk(name, outcome)
				next = append(next, emitted...)
				next = append(next, *out.value)
			}
		}
		pending = next
	}
	return ChunkResult{Chunks: pending}
}

func sameChunk(a, b stream.Chunk) bool {
	return a.Type == b.Type && a.RunID == b.RunID && a.From == b.From && a.Text() == b.Text()
}

// Flush 按顺序排空 Flusher；每个排出的块经过其后的处理器
func (r *Runner) Flush(ctx context.Context, reg *StateRegistry) ChunkResult {
	var out []stream.Chunk
	for i, p := range r.stream {
		f, ok := p.(Flusher)
		if !ok {
			continue
		}
		name := p.Name()
		st := reg.Get(name)

		hctx, span := r.startSpan(ctx, HookFlush, name)
		start := time.Now()
		res := invokeHook(func() (*stream.Chunk, error) {
			return f.Flush(hctx, st), nil
		})
		r.finishSpan(span, HookFlush, name, "", start, res.tripwire, res.fault)
		if !res.ok() || res.value == nil {
			continue
		}

		cr := r.processFrom(ctx, i+1, []stream.Chunk{*res.value}, reg)
		if cr.Aborted {
			cr.Chunks = out
			return cr
		}
		out = append(out, cr.Chunks...)
	}
	return ChunkResult{Chunks: out}
}
