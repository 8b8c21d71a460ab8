package guard

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/agentstream/llm"
)

// stubDetector 返回固定结果并记录请求
type stubDetector struct {
	name string
	det  *Detection
	err  error

	mu   sync.Mutex
	reqs []DetectRequest
}

func (s *stubDetector) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubDetector) Detect(_ context.Context, req DetectRequest) (*Detection, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.det, nil
}

func (s *stubDetector) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func (s *stubDetector) Requests() []DetectRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DetectRequest(nil), s.reqs...)
}

// keywordDetector 文本包含关键字时给出类别分数
type keywordDetector struct {
	keyword  string
	category string
	score    float64
}

func (k keywordDetector) Name() string { return "keyword" }

func (k keywordDetector) Detect(_ context.Context, req DetectRequest) (*Detection, error) {
	if containsWord(req.Text, k.keyword) {
		return &Detection{Scores: map[string]float64{k.category: k.score}}, nil
	}
	return &Detection{}, nil
}

func containsWord(text, word string) bool {
	for i := 0; i+len(word) <= len(text); i++ {
		if text[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

var errDetectorDown = errors.New("detector down")

// fakeProvider 固定返回 content 的 llm.Provider
type fakeProvider struct {
	content string
	err     error

	mu   sync.Mutex
	reqs []*llm.ChatRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{
		Provider: "fake",
		Choices:  []llm.ChatChoice{{Message: llm.Message{Role: "assistant", Content: f.content}}},
	}, nil
}

func (f *fakeProvider) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not supported")
}
