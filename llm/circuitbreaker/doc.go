// Package circuitbreaker 为二级模型调用（检测器、审核端点）提供熔断器。
//
// 连续失败达到阈值后进入 Open，ResetTimeout 之后进入 HalfOpen 试探；
// 试探成功恢复 Closed，失败重新 Open。4xx 类客户端错误不计入失败。
package circuitbreaker
