// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 agentstream 命令行入口。

# 概述

replay 读取一份 provider 原生事件的 JSONL 抓包（方言 agentflow / openai /
anthropic），经过配置的处理器链后把文本流写到 stdout，结束时输出 JSON
运行摘要。文本流与完整事件流由两个并发读者消费，二者共享同一 tee。

# 子命令

  - replay：--config、--input（- 表示 stdin）、--dialect、--run-id、
    --summary（摘要输出路径，默认 stderr）、--metrics-addr
  - version：显示构建信息

日志默认写 stderr，stdout 只承载文本流。
*/
package main
