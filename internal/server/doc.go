// 版权所有 2024 speechflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理命令行程序附带的观测端点（/metrics 与 /healthz）。

# 概述

Manager 封装 net/http.Server，负责监听、后台服务、优雅关闭与
异步错误传播。Run 把整个生命周期绑定到 context 上，便于放进
errgroup 与合成、测延迟等任务一起运行。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道。
  - Config：监听地址、读写超时与优雅关闭超时。

# 主要能力

  - NewMetricsHandler：把 prometheus Gatherer 挂到 /metrics。
  - Start/Shutdown：非阻塞启动与幂等关闭。
  - Run：启动后阻塞到 ctx 结束或服务异常，再优雅关闭。
*/
package server
