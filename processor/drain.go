package processor

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/agentstream/stream"
)

// Drain 以流模式运行处理器链。
//
//   - 中止：发出合成的 tripwire 块后关闭，丢弃后续源块
//   - 上游 error/tripwire/abort 块：不经处理器直接转发，运行结束
//   - finish 块或源正常结束：先排空 Flusher，再处理 finish
//   - ctx 取消：丢弃状态，不再发出任何块
//
// 源的取消由调用方负责。
func (r *Runner) Drain(ctx context.Context, source <-chan stream.Chunk) <-chan stream.Chunk {
	out := make(chan stream.Chunk)
	go func() {
		defer close(out)
		reg := NewStateRegistry()
		defer reg.Discard()

		var runID string
		emit := func(chunks ...stream.Chunk) bool {
			for _, c := range chunks {
				select {
				case <-ctx.Done():
					return false
				case out <- c:
				}
			}
			return true
		}
		tripwire := func(res ChunkResult) {
			r.logger.Info("stream aborted",
				zap.String("run_id", runID),
				zap.String("processor", res.Processor),
				zap.String("reason", res.Reason))
			emit(stream.Tripwire(runID, res.Reason, res.Processor))
		}

		for {
			var (
				chunk stream.Chunk
				ok    bool
			)
			select {
			case <-ctx.Done():
				return
			case chunk, ok = <-source:
			}

			if !ok {
				res := r.Flush(ctx, reg)
				if ctx.Err() != nil {
					return
				}
				emit(res.Chunks...)
				if res.Aborted {
					tripwire(res)
				}
				return
			}
			if runID == "" {
				runID = chunk.RunID
			}

			if chunk.IsTerminal() {
				emit(chunk)
				return
			}

			if chunk.Type == stream.TypeFinish {
				res := r.Flush(ctx, reg)
				if !emit(res.Chunks...) {
					return
				}
				if res.Aborted {
					tripwire(res)
					return
				}
			}

			res := r.ProcessChunk(ctx, chunk, reg)
			if ctx.Err() != nil {
				return
			}
			if !emit(res.Chunks...) {
				return
			}
			if res.Aborted {
				tripwire(res)
				return
			}
		}
	}()
	return out
}
