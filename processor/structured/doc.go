// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package structured 提供结构化输出处理器。

生成结束后，处理器把最后一条 assistant 消息的文本交给二级模型，
按 JSON Schema 抽取为对象，写入消息元数据 structuredOutput。
消息文本保持原样。

抽取失败时按错误策略处理：strict 中止运行，warn 记录日志后原样通过，
fallback 写入配置的默认值。
*/
package structured
