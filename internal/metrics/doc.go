// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的流水线指标采集。

# 核心类型

  - Collector：按业务域分组持有 Counter 与 Histogram 向量，
    通过 promauto.With 注册到调用方提供的 Registerer。

# 主要能力

  - 处理器链：按 processor/outcome 统计块，钩子耗时，
    被恢复的故障与 tripwire 计数。
  - 检测器：二级检测调用次数（ok/error/cached/limited）与延迟。
  - 运行：结束状态计数、Token 用量、背压等待次数。

nil Collector 的所有 Record 方法都是空操作，组件可以不配置指标。
*/
package metrics
