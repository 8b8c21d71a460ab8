package normalize

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// Source provider 原生事件迭代器，与 SDK 的 ssestream.Stream 同形
type Source[E any] interface {
	Next() bool
	Current() E
	Err() error
}

// Pipe 将事件源归一化为规范 Chunk 通道。
// 上游错误转换为一个 error Chunk 后结束；ctx 取消后不再发出任何 Chunk。
func Pipe[E any](ctx context.Context, src Source[E], n Expander[E], runID string, buffer int) <-chan stream.Chunk {
	if buffer < 0 {
		buffer = 0
	}
	out := make(chan stream.Chunk, buffer)
	go func() {
		defer close(out)

		send := func(c stream.Chunk) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- c:
				return !c.IsTerminal()
			}
		}

		for src.Next() {
			if ctx.Err() != nil {
				return
			}
			chunks, err := safeExpand(n, src.Current(), runID)
			if err != nil {
				send(stream.Error(runID, err))
				return
			}
			for _, c := range chunks {
				if !send(c) {
					return
				}
			}
		}
		if err := src.Err(); err != nil {
			if ctx.Err() == nil {
				send(stream.Error(runID, err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		for _, c := range n.Close(runID) {
			if !send(c) {
				return
			}
		}
	}()
	return out
}

// safeExpand 将方言内部的 panic 转换为 ErrInvalidChunk
func safeExpand[E any](n Expander[E], event E, runID string) (chunks []stream.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.ErrInvalidChunk, fmt.Sprintf("normalizer panic: %v", r))
		}
	}()
	return n.Expand(event, runID), nil
}

// ============================================================
// 事件源适配
// ============================================================

type sliceSource[E any] struct {
	events []E
	pos    int
}

// FromSlice 以切片作为事件源
func FromSlice[E any](events []E) Source[E] {
	return &sliceSource[E]{events: events, pos: -1}
}

func (s *sliceSource[E]) Next() bool {
	if s.pos+1 >= len(s.events) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource[E]) Current() E { return s.events[s.pos] }
func (s *sliceSource[E]) Err() error { return nil }

type chanSource[E any] struct {
	ctx     context.Context
	ch      <-chan E
	current E
	err     error
}

// FromChannel 以通道作为事件源（例如 llm.Provider.Stream 的返回值）
func FromChannel[E any](ctx context.Context, ch <-chan E) Source[E] {
	return &chanSource[E]{ctx: ctx, ch: ch}
}

func (s *chanSource[E]) Next() bool {
	select {
	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		return false
	case ev, ok := <-s.ch:
		if !ok {
			return false
		}
		s.current = ev
		return true
	}
}

func (s *chanSource[E]) Current() E { return s.current }
func (s *chanSource[E]) Err() error { return s.err }

type jsonlSource[E any] struct {
	scanner *bufio.Scanner
	current E
	line    int
	err     error
}

// ReadJSONL 逐行解码 JSONL 捕获文件，空行跳过
func ReadJSONL[E any](r io.Reader) Source[E] {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &jsonlSource[E]{scanner: sc}
}

func (s *jsonlSource[E]) Next() bool {
	if s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		s.line++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev E
		if err := json.Unmarshal(line, &ev); err != nil {
			s.err = fmt.Errorf("decode line %d: %w", s.line, err)
			return false
		}
		s.current = ev
		return true
	}
	s.err = s.scanner.Err()
	return false
}

func (s *jsonlSource[E]) Current() E { return s.current }
func (s *jsonlSource[E]) Err() error { return s.err }
