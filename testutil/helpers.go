package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentstream/stream"
)

// =============================================================================
// 上下文辅助
// =============================================================================

// TestContext 返回随测试结束取消的 context
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带超时的 context
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的 context
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 断言
// =============================================================================

// AssertJSONEqual 比较两个值的 JSON 表示
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()
	require.JSONEq(t, MustJSON(expected), MustJSON(actual))
}

// AssertEventuallyTrue 在 timeout 内轮询 condition
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, condition, timeout, 5*time.Millisecond)
}

// WaitForChannel 等待通道的下一个值
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		return v, ok
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// =============================================================================
// 数据工具
// =============================================================================

// MustJSON 编码失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解码失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}

// =============================================================================
// 流式辅助
// =============================================================================

// SendChunks 返回依次发送 chunks 后关闭的通道
func SendChunks(chunks ...stream.Chunk) <-chan stream.Chunk {
	ch := make(chan stream.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// CollectChunks 读取通道直到关闭
func CollectChunks(ch <-chan stream.Chunk) []stream.Chunk {
	var out []stream.Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

// CollectText 拼接所有 text-delta 文本
func CollectText(chunks []stream.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text())
	}
	return b.String()
}

// ChunkTypes 返回每个 Chunk 的类型
func ChunkTypes(chunks []stream.Chunk) []stream.ChunkType {
	out := make([]stream.ChunkType, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}
