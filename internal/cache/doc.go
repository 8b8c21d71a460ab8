/*
包 cache 管理检测结果缓存使用的 Redis 连接。

# 概述

Manager 负责 go-redis 客户端的生命周期：创建时 Ping 验证连通性，
可选后台健康检查，Close 时停止检查并释放连接池。
guard.CachedDetector 通过 Client 取得客户端作为二级缓存。
RedisConfig.TLS 开启时使用 tlsutil 的加固 TLS 配置。
*/
package cache
