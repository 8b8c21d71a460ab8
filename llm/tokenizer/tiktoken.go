package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 基于 tiktoken 的精确计数（OpenAI 系模型）
type TiktokenTokenizer struct {
	model    string
	encoding string
	loader   EncodingLoader
	enc      BPE
	once     sync.Once
	initErr  error
}

// 模型前缀到 tiktoken 编码的映射，按前缀长度优先匹配
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{prefix: "gpt-4o", encoding: "o200k_base"},
	{prefix: "gpt-4.1", encoding: "o200k_base"},
	{prefix: "o1", encoding: "o200k_base"},
	{prefix: "o3", encoding: "o200k_base"},
	{prefix: "gpt-4", encoding: "cl100k_base"},
	{prefix: "gpt-3.5", encoding: "cl100k_base"},
	{prefix: "text-embedding-3", encoding: "cl100k_base"},
}

// DefaultEncoding 未知模型使用的编码
const DefaultEncoding = "cl100k_base"

// EncodingForModel 返回模型对应的 tiktoken 编码名称
func EncodingForModel(model string) string {
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			return m.encoding
		}
	}
	return DefaultEncoding
}

// BPE tiktoken 编码的最小能力集，*tiktoken.Tiktoken 满足该接口
type BPE interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// EncodingLoader 按名称加载 BPE 编码
type EncodingLoader func(encoding string) (BPE, error)

// LoadTiktokenEncoding 默认加载器，首次使用时可能需要下载编码数据
func LoadTiktokenEncoding(encoding string) (BPE, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// NewTiktokenTokenizer 创建 tiktoken 分词器。编码数据在首次使用时加载，
// 需要提前确认可用时调用 Load。
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	return newTiktoken(model, LoadTiktokenEncoding), nil
}

func newTiktoken(model string, loader EncodingLoader) *TiktokenTokenizer {
	return &TiktokenTokenizer{
		model:    model,
		encoding: EncodingForModel(model),
		loader:   loader,
	}
}

// Load 加载编码；结果会被缓存，重复调用返回同一错误
func (t *TiktokenTokenizer) Load() error {
	return t.init()
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := t.loader(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	if err := t.init(); err != nil {
		return nil, err
	}
	return t.enc.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) Decode(tokens []int) (string, error) {
	if err := t.init(); err != nil {
		return "", err
	}
	return t.enc.Decode(tokens), nil
}

// Encoding 返回编码名称
func (t *TiktokenTokenizer) Encoding() string {
	return t.encoding
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
