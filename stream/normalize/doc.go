// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package normalize 将 provider 原生流式事件归一化为规范 [stream.Chunk] 序列。

# 方言

  - [AgentflowNormalizer]：agentflow 线格式（llm.StreamChunk）
  - [OpenAINormalizer]：openai-go 的 ChatCompletionChunk
  - [AnthropicNormalizer]：anthropic-sdk-go 的 MessageStreamEventUnion

每个方言都是 [Expander]：Normalize 为每个事件给出至多一个主 Chunk
（false 表示丢弃，例如 keep-alive 或空增量），Expand 给出完整序列
（含 text-start / step-start 等结构事件），Close 在流正常结束时补齐
尚未发出的结束事件。方言实例持有单次运行的状态（打开的文本块、
工具调用名称解析），不可跨运行复用。

# 管道

[Pipe] 读取 [Source] 并输出规范 Chunk 通道；上游错误转换为一个终止性
error Chunk。[FromChannel]、[FromSlice] 与 [ReadJSONL] 提供常见的事件源适配。
*/
package normalize
