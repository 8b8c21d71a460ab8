// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 agentstream 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual
  - 流式辅助: SendChunks / CollectChunks / CollectText / ChunkTypes，
    用于规范 Chunk 流测试

# 子包

  - testutil/mocks: MockProvider（llm.Provider），支持 Builder 模式与错误注入
  - testutil/fixtures: 预置 Chunk 序列与对话样例

# 使用示例

	ctx := testutil.TestContext(t)
	src := testutil.SendChunks(fixtures.TextRun("run-1", "Hel", "lo")...)
	out := runner.Drain(ctx, src)
	assert.Equal(t, "Hello", testutil.CollectText(testutil.CollectChunks(out)))
*/
package testutil
