// 版权所有 2024 speechflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的流式语音管线指标采集能力，覆盖
REST 请求、WebSocket 连接、上下文路由、会话、播放与延迟六个维度。

# 概述

Collector 通过 promauto.With 注册到注入的 Registerer（默认独立
Registry），所有指标按 namespace 隔离。nil *Collector 的记录方法均为
空操作，库组件默认不采集。

# 主要能力

  - REST 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 连接指标：open/close/error/reconnect 事件计数，收发帧计数。
  - 路由指标：无法归属上下文的丢弃帧，按原因分组。
  - 会话指标：开始/终态计数、存活时长、活跃数、写入采样数、
    服务端报告的生成耗时。
  - 播放指标：调度分段数、欠载次数、当前缓冲时长。
  - 延迟指标：往返测量耗时，按成功/失败分组；识别结果按类型计数。
*/
package metrics
