// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 llm 定义 agentstream 与模型传输层之间的窄接口。

# 概述

模型调用本身不属于流水线的职责，本包只描述流水线需要消费的最小契约：

  - [Provider]：Completion（同步、可带 ResponseFormat 约束）与 Stream
    （返回 [StreamChunk] 通道，即 agentflow 线格式）。
  - [ChatRequest] / [ChatResponse] / [StreamChunk]：请求与增量响应模型。
  - [ResponseFormat]：JSON Schema 约束输出，供结构化抽取和二级检测模型使用。

子包：

  - llm/providers/openai：基于 openai-go 的 Provider 实现
  - llm/moderation：OpenAI Moderation 审核客户端
  - llm/tokenizer：Token 计数（tiktoken 与离线估算）
  - llm/streaming：带背压的多读者广播缓冲
*/
package llm
