package output

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/testutil"
	"github.com/BaSui01/agentstream/types"
)

// upperProc 把 text-delta 转为大写
type upperProc struct{}

func (upperProc) Name() string { return "upper" }

func (upperProc) ProcessOutputStream(_ context.Context, args processor.StreamArgs) (*stream.Chunk, error) {
	c := args.Chunk
	if c.Type == stream.TypeTextDelta {
		c = c.WithText(strings.ToUpper(c.Text()))
	}
	return &c, nil
}

// blockProc 遇到包含 word 的文本时中止
type blockProc struct{ word string }

func (blockProc) Name() string { return "blocker" }

func (p blockProc) ProcessOutputStream(_ context.Context, args processor.StreamArgs) (*stream.Chunk, error) {
	if strings.Contains(args.Chunk.Text(), p.word) {
		return nil, args.Abort("found " + p.word)
	}
	c := args.Chunk
	return &c, nil
}

// resultProc 结果钩子：annotate 非 nil 时给最后一条助手消息附加结构化结果，否则中止
type resultProc struct{ annotate any }

func (resultProc) Name() string { return "result" }

func (p resultProc) ProcessOutputResult(_ context.Context, args processor.ResultArgs) ([]types.Message, error) {
	if p.annotate == nil {
		return nil, args.Abort("rejected")
	}
	out := types.CloneMessages(args.Messages)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == types.RoleAssistant {
			out[i] = out[i].WithMetadata(types.MetadataStructuredOutput, p.annotate)
			break
		}
	}
	return out, nil
}

func newRunner(t *testing.T, cfg processor.Config) *processor.Runner {
	t.Helper()
	r, err := processor.NewRunner(cfg)
	require.NoError(t, err)
	return r
}

func waitResult(t *testing.T, o *Output) *Result {
	t.Helper()
	res, err := o.Result(testutil.TestContextWithTimeout(t, 2*time.Second))
	if err != nil {
		require.NotNil(t, res, "result wait failed: %v", err)
	}
	return res
}

// runIDProc 记录结果钩子看到的运行 ID
type runIDProc struct{ seen chan string }

func (runIDProc) Name() string { return "run-id" }

func (p runIDProc) ProcessOutputResult(_ context.Context, args processor.ResultArgs) ([]types.Message, error) {
	p.seen <- args.RunID
	return args.Messages, nil
}
