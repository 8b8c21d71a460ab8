// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config 提供 agentstream 的配置管理功能。
//
// 配置来源依次为默认值、YAML 文件、环境变量（前缀 AGENTSTREAM_）。
// Pipeline 段按钩子类型声明处理器列表，每项由 type 选择实现，
// options 按该实现的配置结构解码。
package config
