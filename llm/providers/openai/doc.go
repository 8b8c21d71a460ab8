// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 openai 基于官方 openai-go SDK 实现 llm.Provider。

# 核心结构体

  - Provider：Completion 走 Chat Completions，支持 json_schema /
    json_object 响应格式；Stream 开启 include_usage，把 SDK 增量
    转换为 llm.StreamChunk，流错误以 StreamChunk.Err 结尾。

SDK 错误按 HTTP 状态映射为 llm.Error（401/403、429、400、5xx）。
*/
package openai
