package processor

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// appendProc 输入/结果钩子在最后一条消息后追加标记；流钩子给 text-delta 追加标记
type appendProc struct {
	name string
	mark string

	mu    sync.Mutex
	seen  []string
	calls int
}

func (p *appendProc) Name() string { return p.name }

func (p *appendProc) mutate(msgs []types.Message) []types.Message {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	out := append([]types.Message(nil), msgs...)
	out = append(out, types.NewUserMessage(p.mark))
	return out
}

func (p *appendProc) ProcessInput(_ context.Context, args InputArgs) ([]types.Message, error) {
	return p.mutate(args.Messages), nil
}

func (p *appendProc) ProcessOutputResult(_ context.Context, args ResultArgs) ([]types.Message, error) {
	return p.mutate(args.Messages), nil
}

func (p *appendProc) ProcessOutputStream(_ context.Context, args StreamArgs) (*stream.Chunk, error) {
	p.mu.Lock()
	p.seen = append(p.seen, args.Chunk.Text())
	p.mu.Unlock()
	c := args.Chunk
	if c.Type == stream.TypeTextDelta {
		c = c.WithText(c.Text() + p.mark)
	}
	return &c, nil
}

func (p *appendProc) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *appendProc) Seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

// nameOnly 不实现任何钩子
type nameOnly struct{ name string }

func (p nameOnly) Name() string { return p.name }

// abortOn 文本包含 trigger 时中止
type abortOn struct {
	name    string
	trigger string
}

func (p abortOn) Name() string { return p.name }

func (p abortOn) ProcessInput(_ context.Context, args InputArgs) ([]types.Message, error) {
	for _, m := range args.Messages {
		if strings.Contains(m.Text(), p.trigger) {
			return nil, args.Abort("found " + p.trigger)
		}
	}
	return args.Messages, nil
}

func (p abortOn) ProcessOutputStream(_ context.Context, args StreamArgs) (*stream.Chunk, error) {
	if strings.Contains(args.Chunk.Text(), p.trigger) {
		return nil, args.Abort("found " + p.trigger)
	}
	c := args.Chunk
	return &c, nil
}

// faulty 返回错误或 panic
type faulty struct {
	name  string
	panic bool
}

func (p faulty) Name() string { return p.name }

func (p faulty) fail() error {
	if p.panic {
		panic("boom")
	}
	return errors.New("boom")
}

func (p faulty) ProcessInput(context.Context, InputArgs) ([]types.Message, error) {
	return []types.Message{types.NewUserMessage("garbage")}, p.fail()
}

func (p faulty) ProcessOutputResult(context.Context, ResultArgs) ([]types.Message, error) {
	return nil, p.fail()
}

func (p faulty) ProcessOutputStream(context.Context, StreamArgs) (*stream.Chunk, error) {
	return nil, p.fail()
}

// dropText 抑制所有 text-delta
type dropText struct{ name string }

func (p dropText) Name() string { return p.name }

func (p dropText) ProcessOutputStream(_ context.Context, args StreamArgs) (*stream.Chunk, error) {
	if args.Chunk.Type == stream.TypeTextDelta {
		return nil, nil
	}
	c := args.Chunk
	return &c, nil
}

// holdText 缓冲所有 text-delta，在 Flush 时合并发出
type holdText struct {
	name string
}

func (p holdText) Name() string { return p.name }

func (p holdText) ProcessOutputStream(_ context.Context, args StreamArgs) (*stream.Chunk, error) {
	if args.Chunk.Type != stream.TypeTextDelta {
		c := args.Chunk
		return &c, nil
	}
	buf, _ := args.CustomState()["buf"].([]stream.Chunk)
	args.CustomState()["buf"] = append(buf, args.Chunk)
	return nil, nil
}

func (p holdText) Flush(_ context.Context, st *State) *stream.Chunk {
	buf, _ := st.CustomState["buf"].([]stream.Chunk)
	if len(buf) == 0 {
		return nil
	}
	var sb strings.Builder
	for _, c := range buf {
		sb.WriteString(c.Text())
	}
	delete(st.CustomState, "buf")
	out := buf[0].WithText(sb.String())
	return &out
}

// echoEmit 对每个 text-delta 先 Emit 一个前缀块
type echoEmit struct{ name string }

func (p echoEmit) Name() string { return p.name }

func (p echoEmit) ProcessOutputStream(_ context.Context, args StreamArgs) (*stream.Chunk, error) {
	c := args.Chunk
	if c.Type == stream.TypeTextDelta {
		args.Emit(c.WithText(">"))
	}
	return &c, nil
}

func textChunks(runID string, texts ...string) []stream.Chunk {
	out := make([]stream.Chunk, len(texts))
	for i, t := range texts {
		out[i] = stream.TextDelta(runID, "t1", t)
	}
	return out
}

func feed(chunks ...stream.Chunk) <-chan stream.Chunk {
	ch := make(chan stream.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func collect(ch <-chan stream.Chunk) []stream.Chunk {
	var out []stream.Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func texts(chunks []stream.Chunk) []string {
	var out []string
	for _, c := range chunks {
		if c.Type == stream.TypeTextDelta {
			out = append(out, c.Text())
		}
	}
	return out
}

func lastTexts(msgs []types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text()
	}
	return out
}
