// Package mocks 提供测试用的 llm.Provider 模拟实现。
//
// 支持固定响应、按序响应、流式输出与错误注入。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/agentstream/llm"
	"github.com/BaSui01/agentstream/types"
)

// MockProvider llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	// 响应配置
	responses    []string
	streamChunks []string
	err          error

	promptTokens     int
	completionTokens int

	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 调用记录
	calls     []MockProviderCall
	callCount int
	failAfter int
	delay     time.Duration
}

// MockProviderCall 单次调用记录
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// ErrMockFailure WithFailAfter 触发的错误
var ErrMockFailure = errors.New("mock provider: configured to fail after N calls")

// NewMockProvider 创建 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		responses:        []string{"Mock response"},
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse 设置固定响应
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = []string{response}
	return m
}

// WithResponses 按调用顺序返回响应，耗尽后重复最后一个
func (m *MockProvider) WithResponses(responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStreamChunks 设置流式增量
func (m *MockProvider) WithStreamChunks(chunks ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithTokenUsage 设置 Token 用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens, m.completionTokens = prompt, completion
	return m
}

// WithDelay 设置响应延迟，期间响应 ctx 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 第 N 次之后的调用返回 ErrMockFailure
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 自定义 Completion
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

func (m *MockProvider) Name() string { return "mock" }

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	delay := m.delay
	fn := m.completionFunc
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	m.mu.Lock()
	failAfter, err := m.failAfter, m.err
	content := m.responses[len(m.responses)-1]
	if n-1 < len(m.responses) {
		content = m.responses[n-1]
	}
	usage := llm.ChatUsage{
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
		TotalTokens:      m.promptTokens + m.completionTokens,
	}
	m.mu.Unlock()

	if failAfter > 0 && n > failAfter {
		err = ErrMockFailure
	}
	if err != nil {
		m.record(req, nil, err)
		return nil, err
	}

	resp := &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      llm.Message{Role: types.RoleAssistant, Content: content},
		}},
		Usage:     usage,
		CreatedAt: time.Now(),
	}
	m.record(req, resp, nil)
	return resp, nil
}

// Stream 实现 llm.Provider；未设置增量时整段响应作为单个增量
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	m.callCount++
	err := m.err
	chunks := append([]string(nil), m.streamChunks...)
	if len(chunks) == 0 {
		chunks = []string{m.responses[len(m.responses)-1]}
	}
	usage := &llm.ChatUsage{PromptTokens: m.promptTokens, CompletionTokens: m.completionTokens}
	m.mu.Unlock()

	if err != nil {
		m.record(req, nil, err)
		return nil, err
	}
	m.record(req, nil, nil)

	ch := make(chan llm.StreamChunk, len(chunks)+1)
	go func() {
		defer close(ch)
		for i, c := range chunks {
			out := llm.StreamChunk{
				ID:       "mock-chunk-id",
				Provider: "mock",
				Model:    req.Model,
				Delta:    llm.Message{Role: types.RoleAssistant, Content: c},
			}
			if i == len(chunks)-1 {
				out.FinishReason = "stop"
				out.Usage = usage
			}
			select {
			case <-ctx.Done():
				return
			case ch <- out:
			}
		}
	}()
	return ch, nil
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
}

// GetCalls 返回调用记录副本
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockProviderCall(nil), m.calls...)
}

// GetCallCount 返回调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// GetLastCall 返回最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset 清空调用记录与错误
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.err = nil
}

// NewSuccessProvider 总是返回 response
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 总是失败
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewStreamProvider 流式返回 chunks
func NewStreamProvider(chunks ...string) *MockProvider {
	return NewMockProvider().WithStreamChunks(chunks...)
}
