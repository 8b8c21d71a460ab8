// Package telemetry 封装 OpenTelemetry SDK 初始化，
// 为处理器链的 span 提供 TracerProvider。遥测禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
