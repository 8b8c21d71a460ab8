// Package factory 按名称创建二级模型 Provider 与审核 Provider，
// 把 config.LLMConfig 映射到各 provider 子包的构造函数，避免 llm 包直接依赖子包。
package factory
