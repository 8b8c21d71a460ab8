// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package providers 提供模型 Provider 的共享配置；具体实现位于子包。
package providers
