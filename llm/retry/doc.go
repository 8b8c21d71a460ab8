// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package retry 为二级模型调用提供指数退避重试。
package retry
