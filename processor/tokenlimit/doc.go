// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package tokenlimit 提供限制输出 Token 数的处理器。

流模式下按块计数，超限时抑制该块（truncate）或中止运行（abort）；
结果模式下对完成的消息按文本段截断，首个超出预算的段保留
由同一分词器度量的最长可容纳前缀。

计数模式：
  - cumulative：整个运行累计
  - part：每个块评估后清零
*/
package tokenlimit
