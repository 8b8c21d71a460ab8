package normalize

import (
	"github.com/BaSui01/agentstream/stream"
)

// Normalizer 将单个 provider 事件映射为至多一个规范 Chunk
type Normalizer[E any] interface {
	// Normalize 返回主 Chunk；false 表示该事件没有规范含义，应丢弃
	Normalize(event E, runID string) (stream.Chunk, bool)
}

// Expander 在 Normalizer 之上给出事件对应的完整 Chunk 序列
type Expander[E any] interface {
	Normalizer[E]
	// Expand 返回事件对应的全部 Chunk（可能为空）
	Expand(event E, runID string) []stream.Chunk
	// Close 在上游正常结束时调用，补齐未发出的结束事件
	Close(runID string) []stream.Chunk
}

// Dialect 方言名称
type Dialect string

const (
	DialectAgentflow Dialect = "agentflow"
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
)

// Dialects 返回全部内置方言
func Dialects() []Dialect {
	return []Dialect{DialectAgentflow, DialectOpenAI, DialectAnthropic}
}

// primary 选择序列中的主 Chunk（最后一个）
func primary(chunks []stream.Chunk) (stream.Chunk, bool) {
	if len(chunks) == 0 {
		return stream.Chunk{}, false
	}
	return chunks[len(chunks)-1], true
}
