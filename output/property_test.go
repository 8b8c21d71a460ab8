package output

import (
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/processor/batch"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/testutil"
	"github.com/BaSui01/agentstream/testutil/fixtures"
	"github.com/BaSui01/agentstream/types"
)

// TestProperty_TextOrdering 文本流拼接 == Text == 各步骤文本拼接
func TestProperty_TextOrdering(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		steps := rapid.SliceOfN(rapid.SliceOf(rapid.StringMatching(`[a-z ]{0,6}`)), 1, 4).Draw(rt, "steps")
		batchSize := rapid.IntRange(1, 4).Draw(rt, "batchSize")

		var chunks []stream.Chunk
		for i, deltas := range steps {
			id := string(rune('a' + i))
			chunks = append(chunks, fixtures.TextStep("r", id, stream.FinishStop, fixtures.DefaultUsage, deltas...)...)
		}
		chunks = append(chunks, fixtures.Finish("r", stream.FinishStop, types.Usage{}))

		b, err := batch.New(batch.Config{BatchSize: batchSize, MaxWait: time.Minute, EmitOnNonText: true}, nil)
		if err != nil {
			rt.Fatal(err)
		}
		r, err := processor.NewRunner(processor.Config{OutputStream: []processor.Processor{b}})
		if err != nil {
			rt.Fatal(err)
		}

		ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
		o := New(ctx, testutil.SendChunks(chunks...), WithRunner(r))

		var streamed strings.Builder
		for s := range o.TextStream(ctx) {
			streamed.WriteString(s)
		}
		res, err := o.Result(ctx)
		if err != nil {
			rt.Fatal(err)
		}

		var want, fromSteps strings.Builder
		for _, deltas := range steps {
			want.WriteString(strings.Join(deltas, ""))
		}
		for _, s := range res.Steps {
			fromSteps.WriteString(s.Text)
		}
		if res.Text != want.String() || streamed.String() != res.Text || fromSteps.String() != res.Text {
			rt.Fatalf("text mismatch: want %q, text %q, streamed %q, steps %q",
				want.String(), res.Text, streamed.String(), fromSteps.String())
		}
		if len(res.Steps) != len(steps) {
			rt.Fatalf("steps: got %d, want %d", len(res.Steps), len(steps))
		}
		if res.Usage.TotalTokens != len(steps)*fixtures.DefaultUsage.TotalTokens {
			rt.Fatalf("usage total %d", res.Usage.TotalTokens)
		}
	})
}
