// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package guard 提供基于检测器的内容防护处理器。

# 处理器

  - ModerationProcessor：内容审核，默认 block
  - PIIProcessor：个人敏感信息，默认 redact
  - SystemPromptScrubber：系统提示泄露，默认 redact，仅作用于输出

# 检测器

所有处理器把检测委托给 Detector。内置实现：

  - RegexPIIDetector：本地正则识别，无需模型调用
  - SystemPromptDetector：按片段匹配已知系统提示
  - ModerationDetector：OpenAI moderation 接口
  - LLMDetector：通过 llm.Provider 发起 Schema 约束的二级调用

包装器 CachedDetector、RateLimitedDetector、MultiDetector 可自由组合。

检测调用失败一律 fail-open：原内容通过并记录 Warn 日志。
*/
package guard
