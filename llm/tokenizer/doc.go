// Package tokenizer 提供确定性的 Token 计数，
// 支持 tiktoken 精确计数与离线 CJK 估算器，供 Token 限制处理器使用。
package tokenizer
