// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 processor 实现输出流水线的处理器链引擎。

# 概述

处理器是可插拔单元，按需实现三类钩子中的任意几个：

  - InputProcessor：生成前处理消息列表
  - StreamProcessor：逐块处理规范事件流
  - ResultProcessor：生成结束后处理完整消息列表

另外 Flusher 在流正常结束时排空处理器内部缓冲（如批处理器）。

# 执行语义

Runner 严格按配置顺序执行，不支持优先级重排。未实现某钩子的处理器
在该钩子上被静默跳过。钩子通过 Args.Abort 返回 *TripWire 中止运行：
输入与结果路径同步返回该错误，流路径合成一个终止的 tripwire 块。
钩子返回的其他错误或 panic 视为处理器故障：记录日志与指标后
fail-open，转发钩子调用前的值。

# 状态

每个（处理器，运行）对拥有一个 State，由 StateRegistry 在第一次
使用时创建，运行结束或中止时丢弃，不在运行之间共享。
*/
package processor
