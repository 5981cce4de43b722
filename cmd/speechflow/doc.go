// Copyright (c) speechflow Authors.
// Licensed under the MIT License.

/*
Package main 提供 speechflow 命令行程序入口。

# 概述

cmd/speechflow 把客户端库串成可直接使用的工具：流式合成并按
渲染时钟实时播放（或写入 WAV），通过 REST 一次性合成，以及测量到
服务端的往返时延。配置来自 YAML 文件与 SPEECHFLOW_* 环境变量。

# 运行时结构

synthesize 在一个 errgroup 中并行运行三件事：延迟控制器周期测量并
调整缓冲时长，播放器消费会话的采样流，可选的 /metrics 端点。
播放完成后取消整组任务；收到 SIGINT/SIGTERM 时同样取消。

# 构建注入

Version、BuildTime、GitCommit 通过 ldflags 设置。
*/
package main
