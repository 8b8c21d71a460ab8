package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/agentstream/internal/metrics"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

func mustRunner(t *testing.T, cfg Config, opts ...Option) *Runner {
	t.Helper()
	r, err := NewRunner(cfg, opts...)
	require.NoError(t, err)
	return r
}

// ============================================================================
// NewRunner
// ============================================================================

func TestNewRunner_RejectsDuplicateNames(t *testing.T) {
	_, err := NewRunner(Config{OutputStream: []Processor{nameOnly{"a"}, nameOnly{"a"}}})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
	assert.Contains(t, err.Error(), `"a"`)
}

func TestNewRunner_RejectsEmptyAndNil(t *testing.T) {
	_, err := NewRunner(Config{Input: []Processor{nameOnly{""}}})
	assert.Error(t, err)

	_, err = NewRunner(Config{OutputResult: []Processor{nil}})
	assert.Error(t, err)
}

func TestNewRunner_SameNameAcrossLists(t *testing.T) {
	p := &appendProc{name: "shared", mark: "x"}
	r, err := NewRunner(Config{Input: []Processor{p}, OutputStream: []Processor{p}, OutputResult: []Processor{p}})
	require.NoError(t, err)

	in, st, res := r.Names()
	assert.Equal(t, []string{"shared"}, in)
	assert.Equal(t, []string{"shared"}, st)
	assert.Equal(t, []string{"shared"}, res)
	assert.True(t, r.HasStreamProcessors())
	assert.True(t, r.HasResultProcessors())
}

// ============================================================================
// Input / result hooks
// ============================================================================

func TestRunInputProcessors_OrderAndSkip(t *testing.T) {
	p1 := &appendProc{name: "P1", mark: "p1"}
	p2 := nameOnly{name: "P2"}
	p3 := &appendProc{name: "P3", mark: "p3"}
	r := mustRunner(t, Config{Input: []Processor{p1, p2, p3}})

	out, err := r.RunInputProcessors(context.Background(), []types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "p1", "p3"}, lastTexts(out))
}

func TestRunInputProcessors_DoesNotAliasCaller(t *testing.T) {
	r := mustRunner(t, Config{Input: []Processor{&appendProc{name: "P1", mark: "p1"}}})
	in := []types.Message{types.NewUserMessage("hi")}

	_, err := r.RunInputProcessors(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, in, 1)
	assert.Equal(t, "hi", in[0].Text())
}

func TestRunInputProcessors_AbortStopsChain(t *testing.T) {
	after := &appendProc{name: "after", mark: "x"}
	r := mustRunner(t, Config{Input: []Processor{abortOn{name: "guard", trigger: "bad"}, after}})

	out, err := r.RunInputProcessors(context.Background(), []types.Message{types.NewUserMessage("bad input")})
	assert.Nil(t, out)

	var tw *TripWire
	require.True(t, errors.As(err, &tw))
	assert.Equal(t, "guard", tw.Processor)
	assert.Equal(t, "found bad", tw.Reason)
	assert.Contains(t, tw.Error(), `"guard"`)

	assert.Equal(t, 0, after.Calls())
}

func TestRunInputProcessors_FaultIsFailOpen(t *testing.T) {
	for _, panics := range []bool{false, true} {
		core, logs := observer.New(zap.WarnLevel)
		r := mustRunner(t, Config{Input: []Processor{
			faulty{name: "broken", panic: panics},
			&appendProc{name: "next", mark: "n"},
		}}, WithLogger(zap.New(core)))

		out, err := r.RunInputProcessors(context.Background(), []types.Message{types.NewUserMessage("hi")})
		require.NoError(t, err)
		assert.Equal(t, []string{"hi", "n"}, lastTexts(out))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "broken", logs.All()[0].ContextMap()["processor"])
	}
}

func TestRunInputProcessors_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := mustRunner(t, Config{Input: []Processor{&appendProc{name: "P1", mark: "p1"}}})

	_, err := r.RunInputProcessors(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunOutputResultProcessors(t *testing.T) {
	r := mustRunner(t, Config{OutputResult: []Processor{
		&appendProc{name: "a", mark: "a"},
		faulty{name: "broken"},
		&appendProc{name: "b", mark: "b"},
	}})

	out, err := r.RunOutputResultProcessors(context.Background(), []types.Message{types.NewAssistantMessage("answer")})
	require.NoError(t, err)
	assert.Equal(t, []string{"answer", "a", "b"}, lastTexts(out))
}

// ============================================================================
// ProcessChunk
// ============================================================================

func TestProcessChunk_TransformsInOrder(t *testing.T) {
	r := mustRunner(t, Config{OutputStream: []Processor{
		&appendProc{name: "a", mark: "1"},
		nameOnly{name: "skip"},
		&appendProc{name: "b", mark: "2"},
	}})
	reg := NewStateRegistry()

	res := r.ProcessChunk(context.Background(), stream.TextDelta("run", "t", "x"), reg)
	require.False(t, res.Aborted)
	assert.Equal(t, []string{"x12"}, texts(res.Chunks))
	assert.Nil(t, res.TripWire())

	// 每个处理器看到的是前一个处理器的输出
	st, ok := reg.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "x1", st.AccumulatedText)
	assert.Len(t, st.StreamParts, 1)

	_, ok = reg.Lookup("skip")
	assert.False(t, ok)
}

func TestProcessChunk_Suppress(t *testing.T) {
	after := &appendProc{name: "after", mark: "!"}
	r := mustRunner(t, Config{OutputStream: []Processor{dropText{name: "drop"}, after}})

	res := r.ProcessChunk(context.Background(), stream.TextDelta("run", "t", "x"), NewStateRegistry())
	assert.Empty(t, res.Chunks)
	assert.False(t, res.Aborted)
	assert.Empty(t, after.Seen())
}

func TestProcessChunk_FaultForwardsOriginal(t *testing.T) {
	r := mustRunner(t, Config{OutputStream: []Processor{
		&appendProc{name: "a", mark: "1"},
		faulty{name: "broken", panic: true},
		&appendProc{name: "b", mark: "2"},
	}})

	res := r.ProcessChunk(context.Background(), stream.TextDelta("run", "t", "x"), NewStateRegistry())
	assert.Equal(t, []string{"x12"}, texts(res.Chunks))
}

func TestProcessChunk_AbortStopsPropagation(t *testing.T) {
	after := &appendProc{name: "after", mark: "!"}
	r := mustRunner(t, Config{OutputStream: []Processor{abortOn{name: "guard", trigger: "stop"}, after}})
	reg := NewStateRegistry()

	res := r.ProcessChunk(context.Background(), stream.TextDelta("run", "t", "please stop"), reg)
	assert.True(t, res.Aborted)
	assert.Equal(t, "guard", res.Processor)
	assert.Equal(t, "found stop", res.Reason)
	assert.Empty(t, res.Chunks)
	assert.Equal(t, &TripWire{Reason: "found stop", Processor: "guard"}, res.TripWire())
	assert.Empty(t, after.Seen())
}

func TestProcessChunk_EmitPassesLaterProcessors(t *testing.T) {
	r := mustRunner(t, Config{OutputStream: []Processor{echoEmit{name: "echo"}, &appendProc{name: "a", mark: "1"}}})

	res := r.ProcessChunk(context.Background(), stream.TextDelta("run", "t", "x"), NewStateRegistry())
	assert.Equal(t, []string{">1", "x1"}, texts(res.Chunks))
}

func TestFlush_PassesLaterProcessorsAndIsIdempotent(t *testing.T) {
	r := mustRunner(t, Config{OutputStream: []Processor{holdText{name: "hold"}, &appendProc{name: "a", mark: "!"}}})
	reg := NewStateRegistry()

	for _, c := range textChunks("run", "H", "i") {
		res := r.ProcessChunk(context.Background(), c, reg)
		assert.Empty(t, res.Chunks)
	}

	res := r.Flush(context.Background(), reg)
	assert.Equal(t, []string{"Hi!"}, texts(res.Chunks))

	res = r.Flush(context.Background(), reg)
	assert.Empty(t, res.Chunks)
}

// ============================================================================
// Observability
// ============================================================================

func TestRunner_MetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	r := mustRunner(t, Config{
		Input:        []Processor{abortOn{name: "guard", trigger: "bad"}},
		OutputStream: []Processor{dropText{name: "drop"}, faulty{name: "broken"}},
	}, WithMetrics(collector), WithTracerProvider(tp))

	_, err := r.RunInputProcessors(context.Background(), []types.Message{types.NewUserMessage("bad")})
	require.Error(t, err)
	r.ProcessChunk(context.Background(), stream.TextDelta("run", "t", "x"), NewStateRegistry())
	r.ProcessChunk(context.Background(), stream.Start("run", "m1"), NewStateRegistry())

	n, err := testutil.GatherAndCount(reg, "test_processor_tripwires_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = testutil.GatherAndCount(reg, "test_processor_faults_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// drop: suppressed + passed；broken: fault
	n, err = testutil.GatherAndCount(reg, "test_processor_chunks_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	spans := recorder.Ended()
	require.Len(t, spans, 4)
	assert.Equal(t, "processor.input", spans[0].Name())
	assert.Equal(t, "processor.output_stream", spans[1].Name())
}
