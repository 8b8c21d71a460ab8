// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 output 聚合一次运行的规范事件流，并把它 tee 给多个独立消费者。

# 概述

[New] 启动运行：源 Chunk 先经过可选的 processor.Runner，再由单一生产者
goroutine 同时写入聚合器和 streaming.Broadcaster。消费者可以：

  - FullStream：从第一个块开始回放全部事件（含 tripwire / abort / error）
  - TextStream：只读取 text-delta 文本
  - 延迟访问器：Text、Reasoning、ToolCalls、ToolResults、Usage、
    FinishReason、Steps、Object、Messages、Tripwire、Result

延迟访问器在运行结束前挂起，结束后返回同一个只赋值一次的结果。

# 步骤

每个 step-finish 封存一个 [Step]。第一个步骤类型为 initial，之后为
tool-result。所有步骤文本按顺序拼接等于运行总文本。

# 用量

运行用量由各步骤用量逐字段求和后重新计算 TotalTokens，不信任上游的 total。

# 结果处理器

finish 到达时，聚合出的消息列表交给 Runner 的结果处理器链。
处理器中止时 finish 被替换为 tripwire 块。
*/
package output
