// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 streaming 提供带背压的多读者广播缓冲，用于把一次运行的规范事件流
tee 给多个独立消费者。

# 概述

[Broadcaster] 持有单一生产者写入的有序缓冲，每个 [Reader] 从第一个元素
开始按自己的节奏读取，因此所有读者看到相同顺序的相同元素。读者引用计数：
关闭的读者不再参与背压计算。

# 背压

HighWaterMark 限制最慢的活跃读者可以落后生产者的元素数；超过时 Write
阻塞直到读者追上、读者关闭或 ctx 取消。没有活跃读者时写入不阻塞
（之后创建的读者从头回放）。

# 统计

Stats 暴露 produced / blocked / readers 等指标。
*/
package streaming
