// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供运维 HTTP 端点：Prometheus /metrics 与 /healthz。

# 概述

Manager 封装 net/http.Server，负责非阻塞启动、优雅关闭与异步错误传播。
NewOpsHandler 组装 /metrics（promhttp）与 /healthz（逐项执行 HealthCheck）
两个路由，CLI 在 metrics.addr 非空时启动它。
*/
package server
