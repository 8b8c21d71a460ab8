package pipeline

import (
	"context"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/config"
	"github.com/BaSui01/agentstream/llm/streaming"
	"github.com/BaSui01/agentstream/output"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/stream/normalize"
	"github.com/BaSui01/agentstream/types"
)

// Pipeline 已组装的输出流水线，可在多次运行间复用
type Pipeline struct {
	runner *processor.Runner
	stream config.StreamConfig
	deps   Deps
	logger *zap.Logger
}

// New 按配置组装流水线
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	return NewWithRegistry(cfg, deps, defaultRegistry)
}

// NewWithRegistry 使用指定注册表组装流水线
func NewWithRegistry(cfg *config.Config, deps Deps, reg *Registry) (*Pipeline, error) {
	runner, err := reg.Build(cfg.Pipeline, deps)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		runner: runner,
		stream: cfg.Stream,
		deps:   deps,
		logger: deps.logger().With(zap.String("component", "pipeline")),
	}
	in, st, res := runner.Names()
	p.logger.Info("pipeline built",
		zap.Strings("input", in),
		zap.Strings("output_stream", st),
		zap.Strings("output_result", res),
		zap.String("dialect", cfg.Stream.Dialect))
	return p, nil
}

// Runner 返回处理器链
func (p *Pipeline) Runner() *processor.Runner { return p.runner }

// PrepareInput 对输入消息执行 input 处理器；tripwire 以 *processor.TripWire 返回
func (p *Pipeline) PrepareInput(ctx context.Context, msgs []types.Message) ([]types.Message, error) {
	return p.runner.RunInputProcessors(ctx, msgs)
}

// Run 对规范 Chunk 源执行处理器链并聚合输出
func (p *Pipeline) Run(ctx context.Context, src <-chan stream.Chunk, opts ...output.Option) *output.Output {
	base := []output.Option{
		output.WithRunner(p.runner),
		output.WithLogger(p.deps.Logger),
		output.WithMetrics(p.deps.Metrics),
	}
	if p.stream.HighWaterMark > 0 {
		base = append(base, output.WithBroadcastConfig(streaming.BroadcastConfig{HighWaterMark: p.stream.HighWaterMark}))
	}
	return output.New(ctx, src, append(base, opts...)...)
}

// Replay 读取配置方言的 JSONL 事件流并运行；runID 为空时生成
func (p *Pipeline) Replay(ctx context.Context, r io.Reader, runID string, opts ...output.Option) (*output.Output, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	src, err := NormalizeJSONL(ctx, normalize.Dialect(p.stream.Dialect), r, runID, 16)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, src, append(opts, output.WithRunID(runID))...), nil
}
