package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// 钩子名称，用于日志、指标与 span
const (
	HookInput        = "input"
	HookOutputStream = "output_stream"
	HookOutputResult = "output_result"
	HookFlush        = "flush"
)

// Processor 所有处理器的公共接口
type Processor interface {
	// Name 返回处理器唯一名称，作为日志字段与状态键
	Name() string
}

// InputProcessor 处理生成前的消息列表
type InputProcessor interface {
	Processor
	ProcessInput(ctx context.Context, args InputArgs) ([]types.Message, error)
}

// StreamProcessor 逐块处理输出流。
// 返回 nil 表示抑制该块。
type StreamProcessor interface {
	Processor
	ProcessOutputStream(ctx context.Context, args StreamArgs) (*stream.Chunk, error)
}

// ResultProcessor 处理生成结束后的完整消息列表
type ResultProcessor interface {
	Processor
	ProcessOutputResult(ctx context.Context, args ResultArgs) ([]types.Message, error)
}

// Flusher 在流正常结束时排空内部缓冲；无内容时返回 nil。
// 多次调用必须是幂等的。
type Flusher interface {
	Processor
	Flush(ctx context.Context, state *State) *stream.Chunk
}

// ============================================================
// TripWire
// ============================================================

// TripWire 处理器主动中止运行的控制流错误
type TripWire struct {
	Reason    string `json:"reason"`
	Processor string `json:"processor"`
}

func (t *TripWire) Error() string {
	return fmt.Sprintf("tripwire triggered by processor %q: %s", t.Processor, t.Reason)
}

// AsTripWire 从错误链中取出 TripWire
func AsTripWire(err error) (*TripWire, bool) {
	var tw *TripWire
	if errors.As(err, &tw) {
		return tw, true
	}
	return nil, false
}

// ToError 转换为结构化错误
func (t *TripWire) ToError() *types.Error {
	return types.NewError(types.ErrTripwire, t.Reason).WithCause(t)
}

// aborter 为钩子参数提供 Abort
type aborter struct {
	processor string
}

// Abort 构造 TripWire；钩子应直接返回该错误
func (a aborter) Abort(reason string) error {
	return &TripWire{Reason: reason, Processor: a.processor}
}

// ============================================================
// 钩子参数
// ============================================================

// InputArgs 输入钩子参数
type InputArgs struct {
	aborter
	RunID    string
	Messages []types.Message
}

// ResultArgs 结果钩子参数
type ResultArgs struct {
	aborter
	RunID    string
	Messages []types.Message
}

// StreamArgs 流钩子参数
type StreamArgs struct {
	aborter
	RunID string
	Chunk stream.Chunk
	State *State

	emitted *[]stream.Chunk
}

// StreamParts 返回该处理器在本次运行中见过的全部块（含当前块）
func (a StreamArgs) StreamParts() []stream.Chunk {
	return a.State.StreamParts
}

// CustomState 返回处理器私有状态
func (a StreamArgs) CustomState() map[string]any {
	return a.State.CustomState
}

// Emit 在返回值之前额外发出一个块，该块同样经过后续处理器
func (a StreamArgs) Emit(c stream.Chunk) {
	if a.emitted != nil {
		*a.emitted = append(*a.emitted, c)
	}
}

// NewStreamArgs 构造流钩子参数，供处理器单元测试直接调用钩子。
// emitted 可为 nil。
func NewStreamArgs(processor string, chunk stream.Chunk, state *State, emitted *[]stream.Chunk) StreamArgs {
	if state == nil {
		state = NewState()
	}
	return StreamArgs{
		aborter: aborter{processor: processor},
		RunID:   chunk.RunID,
		Chunk:   chunk,
		State:   state,
		emitted: emitted,
	}
}

// NewInputArgs 构造输入钩子参数
func NewInputArgs(processor, runID string, msgs []types.Message) InputArgs {
	return InputArgs{aborter: aborter{processor: processor}, RunID: runID, Messages: msgs}
}

// NewResultArgs 构造结果钩子参数
func NewResultArgs(processor, runID string, msgs []types.Message) ResultArgs {
	return ResultArgs{aborter: aborter{processor: processor}, RunID: runID, Messages: msgs}
}
