package processor

import (
	"strings"
	"sync"

	"github.com/BaSui01/agentstream/stream"
)

// State 单个（处理器，运行）的状态
type State struct {
	// AccumulatedText 已见 text-delta 的拼接，只追加
	AccumulatedText string
	// CustomState 处理器独占的私有状态
	CustomState map[string]any
	// StreamParts 已见的块，含当前块
	StreamParts []stream.Chunk

	text strings.Builder
}

// NewState 创建空状态
func NewState() *State {
	return &State{CustomState: make(map[string]any)}
}

// Observe 记录处理器即将看到的块
func (s *State) Observe(c stream.Chunk) {
	s.StreamParts = append(s.StreamParts, c)
	if c.Type == stream.TypeTextDelta {
		s.text.WriteString(c.Text())
		s.AccumulatedText = s.text.String()
	}
}

// Window 返回当前块之前最多 n 个块（不含当前块）
func (s *State) Window(n int) []stream.Chunk {
	if n <= 0 || len(s.StreamParts) <= 1 {
		return nil
	}
	prev := s.StreamParts[:len(s.StreamParts)-1]
	if len(prev) > n {
		prev = prev[len(prev)-n:]
	}
	return prev
}

// StateRegistry 单次运行的状态表，按处理器名称索引
type StateRegistry struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewStateRegistry 创建状态表；每次运行一个
func NewStateRegistry() *StateRegistry {
	return &StateRegistry{states: make(map[string]*State)}
}

// Get 获取或创建处理器状态
func (r *StateRegistry) Get(name string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[name]
	if !ok {
		st = NewState()
		r.states[name] = st
	}
	return st
}

// Lookup 获取已存在的状态
func (r *StateRegistry) Lookup(name string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[name]
	return st, ok
}

// Len 返回已创建的状态数
func (r *StateRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Discard 丢弃全部状态
func (r *StateRegistry) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.states)
}
