// Copyright (c) speechflow Authors.
// Licensed under the MIT License.

/*
Package types 提供 speechflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 audio、transport、tts、
player 等上层模块提供统一的错误契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTPStatus、Retryable、ContextID 标记

# 错误分类

  - CONNECTION / NOT_CONNECTED：传输层无法建立或尚未建立连接
  - PROTOCOL：入站帧无法解析
  - APPLICATION：服务端返回 type="error" 帧
  - TIMEOUT：会话空闲超时
  - USAGE：调用方式错误（同步返回）
  - UNINITIALIZED：播放器尚未 Play 就被操作
*/
package types
