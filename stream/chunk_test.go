package stream

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentstream/types"
)

func TestChunk_ConstructorsAreConsistent(t *testing.T) {
	chunks := []Chunk{
		Start("r", "m1"),
		StepStart("r", StepStartPayload{MessageID: "m1"}),
		TextStart("r", "t"),
		TextDelta("r", "t", "hi"),
		TextEnd("r", "t"),
		ReasoningStart("r", "x"),
		ReasoningDelta("r", "x", "think"),
		ReasoningEnd("r", "x"),
		Source("r", SourcePayload{ID: "s", SourceType: "url", URL: "https://example.com"}),
		File("r", FilePayload{MediaType: "image/png", Base64: "AA=="}),
		ToolCall("r", "c1", "search", json.RawMessage(`{"q":"go"}`)),
		ToolCallDelta("r", "c1", "search", `{"q"`),
		ToolResult("r", "c1", "search", json.RawMessage(`["a"]`), false),
		ToolError("r", "c1", "search", "boom"),
		StepFinish("r", StepFinishPayload{FinishReason: FinishStop}),
		Finish("r", FinishPayload{StepResult: StepResult{Reason: FinishStop}}),
		Error("r", errors.New("upstream")),
		Raw("r", json.RawMessage(`{"k":1}`)),
		Object("r", map[string]any{"a": 1.0}),
		Tripwire("r", "blocked", "moderation"),
		Abort("r", "cancelled"),
	}

	seen := make(map[ChunkType]bool)
	for _, c := range chunks {
		require.NoError(t, c.Validate(), "type %s", c.Type)
		assert.Equal(t, "r", c.RunID)
		seen[c.Type] = true
	}
	for _, typ := range AllTypes() {
		assert.True(t, seen[typ], "no constructor exercised for %s", typ)
	}
}

func TestChunk_ValidateRejectsMismatch(t *testing.T) {
	c := Chunk{RunID: "r", Type: TypeTextDelta, Payload: FinishPayload{}}
	assert.Error(t, c.Validate())

	c = Chunk{RunID: "r", Type: "bogus", Payload: TextDeltaPayload{}}
	assert.Error(t, c.Validate())

	c = Chunk{RunID: "r", Type: TypeTextDelta}
	assert.Error(t, c.Validate())
}

func TestPayloadAs(t *testing.T) {
	c := TextDelta("r", "t", "hello")

	p, ok := PayloadAs[TextDeltaPayload](c)
	require.True(t, ok)
	assert.Equal(t, "hello", p.Text)

	_, ok = PayloadAs[FinishPayload](c)
	assert.False(t, ok)

	// 类型与载荷不一致时拒绝读取
	bad := Chunk{Type: TypeTextEnd, Payload: TextDeltaPayload{Text: "x"}}
	_, ok = PayloadAs[TextDeltaPayload](bad)
	assert.False(t, ok)
}

func TestChunk_TextHelpers(t *testing.T) {
	c := TextDelta("r", "t", "abc")
	assert.Equal(t, "abc", c.Text())

	d := c.WithText("xyz")
	assert.Equal(t, "xyz", d.Text())
	assert.Equal(t, "abc", c.Text(), "original must stay unchanged")

	f := Finish("r", FinishPayload{})
	assert.Equal(t, "", f.Text())
	assert.Equal(t, f, f.WithText("ignored"))
}

func TestChunk_IsTerminal(t *testing.T) {
	assert.True(t, Error("r", nil).IsTerminal())
	assert.True(t, Tripwire("r", "x", "p").IsTerminal())
	assert.True(t, Abort("r", "").IsTerminal())
	assert.False(t, Finish("r", FinishPayload{}).IsTerminal())
	assert.False(t, TextDelta("r", "t", "x").IsTerminal())
}

func TestError_PreservesCode(t *testing.T) {
	c := Error("r", types.NewError(types.ErrUpstreamTimeout, "deadline").WithCause(errors.New("io")))
	p, ok := PayloadAs[ErrorPayload](c)
	require.True(t, ok)
	assert.Equal(t, types.ErrUpstreamTimeout, p.Code)
	assert.Equal(t, "deadline: io", p.Message)
	assert.Equal(t, types.ErrUpstreamTimeout, types.GetErrorCode(p.Err()))

	plain, _ := PayloadAs[ErrorPayload](Error("r", errors.New("reset")))
	assert.Equal(t, types.ErrUpstreamError, plain.Code)
}

func TestChunk_JSONRoundTrip(t *testing.T) {
	in := []Chunk{
		TextDelta("r", "t", "hello"),
		ToolCall("r", "c1", "search", json.RawMessage(`{"q":"go"}`)),
		StepFinish("r", StepFinishPayload{FinishReason: FinishToolCalls, Usage: types.Usage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7}}),
		Tripwire("r", "blocked", "pii"),
	}
	for _, c := range in {
		data, err := json.Marshal(c)
		require.NoError(t, err)

		var out Chunk
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, c.Type, out.Type)
		assert.Equal(t, c.From, out.From)
		require.NoError(t, out.Validate())
	}

	var out Chunk
	err := json.Unmarshal([]byte(`{"runId":"r","type":"nope","payload":{}}`), &out)
	assert.Error(t, err)

	_, err = json.Marshal(Chunk{Type: TypeTextDelta})
	assert.Error(t, err)
}
