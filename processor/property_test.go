package processor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentstream/stream"
)

// 中止的块不会被任何后续处理器看到，且之后不再处理任何块
func TestProperty_AbortStopsPropagation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "STOP"}), 1, 20).Draw(rt, "words")
		before := &appendProc{name: "before", mark: ""}
		after := &appendProc{name: "after", mark: ""}
		r, err := NewRunner(Config{OutputStream: []Processor{before, abortOn{name: "guard", trigger: "STOP"}, after}})
		if err != nil {
			rt.Fatal(err)
		}

		out := collect(r.Drain(context.Background(), feed(textChunks("run", words...)...)))

		stopAt := -1
		for i, w := range words {
			if w == "STOP" {
				stopAt = i
				break
			}
		}
		if stopAt < 0 {
			if got := strings.Join(texts(out), ""); got != strings.Join(words, "") {
				rt.Fatalf("got %q", got)
			}
			return
		}
		if len(before.Seen()) != stopAt+1 {
			rt.Fatalf("before saw %d chunks, want %d", len(before.Seen()), stopAt+1)
		}
		if len(after.Seen()) != stopAt {
			rt.Fatalf("after saw %d chunks, want %d", len(after.Seen()), stopAt)
		}
		if last := out[len(out)-1]; last.Type != stream.TypeTripwire {
			rt.Fatalf("last chunk %s, want tripwire", last.Type)
		}
	})
}

// 相同输入与处理器列表产生相同输出
func TestProperty_ChainDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	run := func(words []string) string {
		r, err := NewRunner(Config{OutputStream: []Processor{
			echoEmit{name: "echo"},
			holdText{name: "hold"},
			&appendProc{name: "mark", mark: "|"},
		}})
		if err != nil {
			panic(err)
		}
		out := collect(r.Drain(context.Background(), feed(append(textChunks("run", words...), finish("run"))...)))
		var sb strings.Builder
		for _, c := range out {
			fmt.Fprintf(&sb, "%s:%s;", c.Type, c.Text())
		}
		return sb.String()
	}

	properties.Property("repeated runs agree", prop.ForAll(
		func(words []string) bool {
			return run(words) == run(words)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
