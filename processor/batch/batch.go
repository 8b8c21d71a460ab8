package batch

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// DefaultName 默认处理器名称
const DefaultName = "batcher"

const stateKey = "batch"

// Config 批处理配置
type Config struct {
	Name          string        `json:"name,omitempty" yaml:"name,omitempty"`
	BatchSize     int           `json:"batch_size" yaml:"batch_size"`
	MaxWait       time.Duration `json:"max_wait" yaml:"max_wait"`
	EmitOnNonText bool          `json:"emit_on_non_text" yaml:"emit_on_non_text"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Name:          DefaultName,
		BatchSize:     5,
		MaxWait:       100 * time.Millisecond,
		EmitOnNonText: true,
	}
}

// buffer 单次运行的批缓冲，保存在 State.CustomState 中
type buffer struct {
	mu     sync.Mutex
	chunks []stream.Chunk
	timer  *time.Timer
	fired  bool
}

func (b *buffer) arm(d time.Duration) {
	if d <= 0 || b.timer != nil {
		return
	}
	b.timer = time.AfterFunc(d, func() {
		b.mu.Lock()
		b.fired = true
		b.mu.Unlock()
	})
}

// take 取出全部缓冲并重置计时器
func (b *buffer) take() []stream.Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.fired = false
	out := b.chunks
	b.chunks = nil
	return out
}

func (b *buffer) expired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fired
}

func (b *buffer) add(c stream.Chunk) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, c)
	return len(b.chunks)
}

// Processor 文本批处理器
type Processor struct {
	cfg    Config
	logger *zap.Logger
}

// New 创建批处理器
func New(cfg Config, logger *zap.Logger) (*Processor, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.BatchSize <= 0 {
		return nil, types.NewError(types.ErrInvalidConfig, "batch size must be positive")
	}
	if cfg.MaxWait < 0 {
		return nil, types.NewError(types.ErrInvalidConfig, "max wait must not be negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "batcher"), zap.String("processor", cfg.Name)),
	}, nil
}

func (p *Processor) Name() string { return p.cfg.Name }

func bufferOf(st *processor.State) *buffer {
	if b, ok := st.CustomState[stateKey].(*buffer); ok {
		return b
	}
	b := &buffer{}
	st.CustomState[stateKey] = b
	return b
}

// ProcessOutputStream 实现 processor.StreamProcessor。
// 非文本块默认先冲刷缓冲再原样发出；EmitOnNonText 关闭时缓冲保留，非文本块直接通过。
func (p *Processor) ProcessOutputStream(_ context.Context, args processor.StreamArgs) (*stream.Chunk, error) {
	buf := bufferOf(args.State)
	chunk := args.Chunk

	if chunk.Type != stream.TypeTextDelta {
		if p.cfg.EmitOnNonText {
			if combined := combine(buf.take()); combined != nil {
				args.Emit(*combined)
			}
		}
		return &chunk, nil
	}

	// 超时在下一个块到来时检测，先冲刷旧缓冲再加入新块
	if buf.expired() {
		if combined := combine(buf.take()); combined != nil {
			args.Emit(*combined)
		}
	}

	if n := buf.add(chunk); n >= p.cfg.BatchSize {
		return combine(buf.take()), nil
	}
	buf.arm(p.cfg.MaxWait)
	return nil, nil
}

// Flush 实现 processor.Flusher；空缓冲返回 nil
func (p *Processor) Flush(_ context.Context, st *processor.State) *stream.Chunk {
	b, ok := st.CustomState[stateKey].(*buffer)
	if !ok {
		return nil
	}
	out := combine(b.take())
	if out != nil {
		p.logger.Debug("flushed buffered text", zap.String("run_id", out.RunID))
	}
	return out
}

// combine 按到达顺序拼接文本；单个块原样返回
func combine(chunks []stream.Chunk) *stream.Chunk {
	switch len(chunks) {
	case 0:
		return nil
	case 1:
		c := chunks[0]
		return &c
	}
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Text())
	}
	out := chunks[0].WithText(sb.String())
	return &out
}
