// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package batch 提供将细碎 text-delta 合并为较大块的流处理器。
package batch
