// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package stream 定义 agentstream 的规范事件模型（Chunk）。

# 概述

所有 provider 原生的增量生成事件都会被归一化为 Chunk。Chunk 是一个封闭的
标签联合：Type 决定 Payload 的具体结构，消费者必须先按 Type 分派再读取载荷。

# 核心类型

  - Chunk: RunID、From（来源）、Type 与 Payload
  - Payload: 封闭接口，每种 ChunkType 对应一个载荷结构体
  - FinishReason: 步骤/运行结束原因

# 构造与访问

包内构造函数（TextDelta、ToolCall、Finish 等）保证 Type 与 Payload 一致；
PayloadAs 提供类型安全的载荷读取；Validate 拒绝不一致的 Chunk。
Chunk 支持 JSON 编解码，解码时按 type 字段还原载荷。
*/
package stream
