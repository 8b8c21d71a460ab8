package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func TestEstimator_Counts(t *testing.T) {
	e := NewEstimatorTokenizer()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short ascii rounds up to one", "Hi", 1},
		{"hello", "Hello", 1},
		{"ascii", strings.Repeat("a", 40), 10},
		{"cjk", "你好世界你好", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CountTokens(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProperty_EstimatorMonotoneOnPrefixes(t *testing.T) {
	e := NewEstimatorTokenizer()
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.String().Draw(rt, "text")
		runes := []rune(text)
		cut := rapid.IntRange(0, len(runes)).Draw(rt, "cut")

		prefix, err := e.CountTokens(string(runes[:cut]))
		require.NoError(rt, err)
		full, err := e.CountTokens(text)
		require.NoError(rt, err)
		if prefix > full {
			rt.Fatalf("prefix count %d exceeds full count %d", prefix, full)
		}
	})
}

func TestEncodingForModel(t *testing.T) {
	assert.Equal(t, "o200k_base", EncodingForModel("gpt-4o-mini"))
	assert.Equal(t, "cl100k_base", EncodingForModel("gpt-4-turbo"))
	assert.Equal(t, DefaultEncoding, EncodingForModel("claude-3"))
}

// wordBPE 按空白切分的假编码
type wordBPE struct{}

func (wordBPE) Encode(text string, _, _ []string) []int {
	out := make([]int, len(strings.Fields(text)))
	for i := range out {
		out[i] = i
	}
	return out
}

func (wordBPE) Decode(tokens []int) string { return strings.Repeat("w ", len(tokens)) }

func TestNew(t *testing.T) {
	tk, err := New(KindEstimator, "")
	require.NoError(t, err)
	assert.Equal(t, "estimator", tk.Name())

	var loaded string
	tk, err = New(KindTiktoken, "gpt-4o", WithEncodingLoader(func(enc string) (BPE, error) {
		loaded = enc
		return wordBPE{}, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "o200k_base", loaded)
	assert.Equal(t, "tiktoken[o200k_base]", tk.Name())

	n, err := tk.CountTokens("one two three")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = New("bogus", "")
	assert.Error(t, err)
}

func TestNew_EncodingUnavailableFallsBackToEstimator(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	failing := func(string) (BPE, error) { return nil, errors.New("dial tcp: no such host") }

	for _, kind := range []Kind{KindTiktoken, ""} {
		tk, err := New(kind, "gpt-4", WithEncodingLoader(failing), WithLogger(zap.New(core)))
		require.NoError(t, err)
		assert.Equal(t, "estimator", tk.Name())

		n, err := tk.CountTokens(strings.Repeat("word ", 100))
		require.NoError(t, err)
		assert.Positive(t, n)
	}

	entries := logs.FilterMessage("tiktoken encoding unavailable, falling back to estimator").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "cl100k_base", entries[0].ContextMap()["encoding"])
}

func TestTiktoken_LoadErrorIsSticky(t *testing.T) {
	calls := 0
	tk := newTiktoken("gpt-4", func(string) (BPE, error) {
		calls++
		return nil, errors.New("offline")
	})

	require.Error(t, tk.Load())
	_, err := tk.CountTokens("hello")
	require.ErrorContains(t, err, "init tiktoken encoding cl100k_base")
	assert.Equal(t, 1, calls)

	n, err := tk.CountTokens("")
	require.NoError(t, err)
	assert.Zero(t, n)
}
