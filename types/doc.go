// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentstream 各层共享的基础类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 stream、processor、output、
llm 等上层模块提供统一的消息、用量与错误契约，避免循环依赖。

# 核心类型

  - Message / Part：带角色的消息，由若干类型化片段（text、tool-call 等）组成
  - ToolCall / ToolResult：工具调用与工具结果
  - Usage：Token 用量，TotalTokens 始终由各分项重新计算
  - Error / ErrorCode：结构化错误体系（Tripwire、处理器故障、上游错误等）

# 主要能力

  - Context 传播：WithRunID / WithProcessorName
  - 错误工具链：NewError / WithCause / GetErrorCode / IsErrorCode
*/
package types
