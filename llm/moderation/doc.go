// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 moderation 提供内容审核服务抽象，用于检测文本中的违规内容，
输出逐类别的标记与置信度评分。

# 核心接口

  - ModerationProvider：审核提供者接口，包含 Name 与 Moderate。
  - ModerationResult：单条输入的结果，Categories / Scores 以
    OpenAI 类别键（hate、self-harm/intent 等）索引。

# 实现

OpenAIProvider 基于 openai-go 的 Moderations.New 调用，
OpenAIConfig 提供 API Key、BaseURL、Model、Timeout 与重试次数。
processor/guard 将其适配为审核检测器。
*/
package moderation
