// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 pipeline 把配置组装为可运行的输出流水线。

# 概述

Registry 按类型名（token-limiter、batch、moderation、pii、system-prompt、
structured-output）创建处理器；Build 按 config.PipelineConfig 三个列表的
声明顺序组装 processor.Runner。检测器按配置依次包上限流与缓存。

Pipeline 再把方言归一化（stream/normalize）、处理器链与 output 聚合串起来：

	p, _ := pipeline.New(cfg, deps)
	out, _ := p.Replay(ctx, file, "")
	for text := range out.TextStream(ctx) { ... }
*/
package pipeline
