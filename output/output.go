package output

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/internal/metrics"
	"github.com/BaSui01/agentstream/llm/streaming"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// Result 运行的最终状态，只赋值一次
type Result struct {
	RunID        string                     `json:"runId"`
	Text         string                     `json:"text"`
	Reasoning    string                     `json:"reasoning,omitempty"`
	ToolCalls    []stream.ToolCallPayload   `json:"toolCalls,omitempty"`
	ToolResults  []stream.ToolResultPayload `json:"toolResults,omitempty"`
	Usage        types.Usage                `json:"usage"`
	FinishReason stream.FinishReason        `json:"finishReason"`
	Steps        []Step                     `json:"steps,omitempty"`
	Object       any                        `json:"object,omitempty"`
	// Messages 输入消息加本次运行的响应消息，经过结果处理器
	Messages []types.Message     `json:"messages,omitempty"`
	Tripwire *processor.TripWire `json:"tripwire,omitempty"`
	// Err 上游错误、调用方 abort 或取消；tripwire 不算错误
	Err error `json:"-"`
}

// Option 配置 Output
type Option func(*Output)

// WithRunID 指定运行 ID，默认生成 UUID
func WithRunID(id string) Option {
	return func(o *Output) { o.runID = id }
}

// WithRunner 让源块先经过处理器链
func WithRunner(r *processor.Runner) Option {
	return func(o *Output) { o.runner = r }
}

// WithMessages 设置生成前的输入消息，结果处理器与 Messages 访问器会看到它们
func WithMessages(msgs []types.Message) Option {
	return func(o *Output) { o.input = types.CloneMessages(msgs) }
}

// WithBroadcastConfig 设置 tee 缓冲的背压参数
func WithBroadcastConfig(cfg streaming.BroadcastConfig) Option {
	return func(o *Output) { o.broadcast = cfg }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *Output) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Output) { o.metrics = c }
}

// Output 一次运行的聚合输出
type Output struct {
	runID     string
	runner    *processor.Runner
	input     []types.Message
	broadcast streaming.BroadcastConfig
	logger    *zap.Logger
	metrics   *metrics.Collector

	b      *streaming.Broadcaster[stream.Chunk]
	done   chan struct{}
	result *Result
}

// New 启动运行并立即返回。source 关闭、遇到终止块或 ctx 取消时运行结束。
func New(ctx context.Context, source <-chan stream.Chunk, opts ...Option) *Output {
	o := &Output{
		broadcast: streaming.DefaultBroadcastConfig(),
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	o.logger = o.logger.With(zap.String("component", "output"), zap.String("run_id", o.runID))
	o.b = streaming.NewBroadcaster[stream.Chunk](o.broadcast)

	go o.run(types.WithRunID(ctx, o.runID), source)
	return o
}

// RunID 返回运行 ID
func (o *Output) RunID() string { return o.runID }

// Done 运行结束后关闭
func (o *Output) Done() <-chan struct{} { return o.done }

// ============================================================
// 生产者
// ============================================================

func (o *Output) run(ctx context.Context, source <-chan stream.Chunk) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		agg    aggregator
		res    = &Result{RunID: o.runID}
		status = metrics.RunCompleted
	)
	defer func() {
		agg.fill(res)
		o.result = res
		_ = o.b.Close()
		close(o.done)

		stats := o.b.Stats()
		o.metrics.RecordRun(status, res.Usage)
		o.metrics.RecordBackpressure(stats.Blocked)
		o.logger.Debug("run finished",
			zap.String("status", status),
			zap.Int("steps", len(res.Steps)),
			zap.Int("total_tokens", res.Usage.TotalTokens),
			zap.Int64("chunks", stats.Produced),
			zap.Int64("backpressure_waits", stats.Blocked))
	}()

	chunks := o.stamp(runCtx, source)
	if o.runner != nil {
		chunks = o.runner.Drain(runCtx, chunks)
	}

	for {
		var (
			c  stream.Chunk
			ok bool
		)
		select {
		case <-runCtx.Done():
		case c, ok = <-chunks:
		}
		if !ok {
			if err := ctx.Err(); err != nil {
				res.Err = err
				status = metrics.RunCancelled
			}
			return
		}

		agg.add(c)
		if c.Type == stream.TypeFinish {
			var err error
			if c, err = o.complete(runCtx, &agg, c, res); err != nil {
				res.Err = err
				status = metrics.RunCancelled
				return
			}
		}

		switch p := c.Payload.(type) {
		case stream.ErrorPayload:
			res.Err = p.Err()
			res.FinishReason = stream.FinishError
			status = metrics.RunError
			o.logger.Warn("upstream error", zap.Error(res.Err))
		case stream.TripwirePayload:
			res.Tripwire = &processor.TripWire{Reason: p.Reason, Processor: p.Processor}
			status = metrics.RunTripwire
		case stream.AbortPayload:
			res.Err = types.NewError(types.ErrRunCancelled, "run aborted: "+p.Reason)
			status = metrics.RunCancelled
		}

		if err := o.b.Write(runCtx, c); err != nil {
			res.Err = err
			status = metrics.RunCancelled
			return
		}
		if c.Type == stream.TypeFinish || c.IsTerminal() {
			return
		}
	}
}

// stamp 给缺少 RunID 的块补上运行 ID
func (o *Output) stamp(ctx context.Context, source <-chan stream.Chunk) <-chan stream.Chunk {
	out := make(chan stream.Chunk)
	go func() {
		defer close(out)
		for {
			var (
				c  stream.Chunk
				ok bool
			)
			select {
			case <-ctx.Done():
				return
			case c, ok = <-source:
			}
			if !ok {
				return
			}
			if c.RunID == "" {
				c.RunID = o.runID
			}
			select {
			case <-ctx.Done():
				return
			case out <- c:
			}
		}
	}()
	return out
}

// complete 在 finish 处运行结果处理器，返回实际发出的块（finish 或 tripwire）
func (o *Output) complete(ctx context.Context, agg *aggregator, c stream.Chunk, res *Result) (stream.Chunk, error) {
	msgs := append(types.CloneMessages(o.input), agg.responseMessages()...)
	if o.runner != nil && o.runner.HasResultProcessors() {
		processed, err := o.runner.RunOutputResultProcessors(ctx, msgs)
		if tw, ok := processor.AsTripWire(err); ok {
			o.logger.Info("result aborted",
				zap.String("processor", tw.Processor),
				zap.String("reason", tw.Reason))
			return stream.Tripwire(c.RunID, tw.Reason, tw.Processor).WithFrom(c.From), nil
		}
		if err != nil {
			return c, err
		}
		msgs = processed
	}
	res.Messages = msgs

	p, _ := stream.PayloadAs[stream.FinishPayload](c)
	p.Messages = msgs
	return c.WithPayload(p), nil
}

// ============================================================
// 消费者
// ============================================================

// FullStream 返回从第一个块开始的完整事件流。
// 每次调用都是独立读者；ctx 取消时释放读者。
func (o *Output) FullStream(ctx context.Context) <-chan stream.Chunk {
	return o.b.NewReader().Chan(ctx)
}

// TextStream 返回只含 text-delta 文本的流
func (o *Output) TextStream(ctx context.Context) <-chan string {
	src := o.FullStream(ctx)
	out := make(chan string)
	go func() {
		defer close(out)
		for c := range src {
			if c.Type != stream.TypeTextDelta || c.Text() == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- c.Text():
			}
		}
	}()
	return out
}

// ============================================================
// 延迟访问器
// ============================================================

// await 挂起直到运行结束或 ctx 取消
func await[T any](ctx context.Context, o *Output, get func(*Result) T) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-o.done:
		return get(o.result), o.result.Err
	}
}

// Result 返回完整的运行结果
func (o *Output) Result(ctx context.Context) (*Result, error) {
	return await(ctx, o, func(r *Result) *Result { return r })
}

func (o *Output) Text(ctx context.Context) (string, error) {
	return await(ctx, o, func(r *Result) string { return r.Text })
}

func (o *Output) Reasoning(ctx context.Context) (string, error) {
	return await(ctx, o, func(r *Result) string { return r.Reasoning })
}

func (o *Output) ToolCalls(ctx context.Context) ([]stream.ToolCallPayload, error) {
	return await(ctx, o, func(r *Result) []stream.ToolCallPayload { return r.ToolCalls })
}

func (o *Output) ToolResults(ctx context.Context) ([]stream.ToolResultPayload, error) {
	return await(ctx, o, func(r *Result) []stream.ToolResultPayload { return r.ToolResults })
}

func (o *Output) Usage(ctx context.Context) (types.Usage, error) {
	return await(ctx, o, func(r *Result) types.Usage { return r.Usage })
}

func (o *Output) FinishReason(ctx context.Context) (stream.FinishReason, error) {
	return await(ctx, o, func(r *Result) stream.FinishReason { return r.FinishReason })
}

func (o *Output) Steps(ctx context.Context) ([]Step, error) {
	return await(ctx, o, func(r *Result) []Step { return r.Steps })
}

// Object 返回 object 块的最后一个值；没有时取结构化输出元数据
func (o *Output) Object(ctx context.Context) (any, error) {
	return await(ctx, o, func(r *Result) any { return r.Object })
}

func (o *Output) Messages(ctx context.Context) ([]types.Message, error) {
	return await(ctx, o, func(r *Result) []types.Message { return r.Messages })
}

// Tripwire 返回中止信息；未中止时为 nil
func (o *Output) Tripwire(ctx context.Context) (*processor.TripWire, error) {
	return await(ctx, o, func(r *Result) *processor.TripWire { return r.Tripwire })
}

// IsCancelled 报告 err 是否来自运行取消
func IsCancelled(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *types.Error
	return errors.As(err, &te) && te.Code == types.ErrRunCancelled
}
