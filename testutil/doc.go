// Copyright 2026 speechflow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 speechflow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
上下文、异步断言与 WebSocket 测试服务端等基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON
  - WebSocket 服务端: NewWSServer 基于 httptest 与 coder/websocket，
    记录收到的帧并按脚本回放服务端消息

# 子包

  - testutil/mocks: 内存 Socket，可同步注入入站帧与断线事件
  - testutil/fixtures: PCM 片段、服务端应答帧等样例数据

# 使用示例

	srv := testutil.NewWSServer(t, func(ctx context.Context, c *testutil.WSConn) {
	    req, _ := c.ReadText(ctx)
	    _ = c.WriteText(ctx, fixtures.DoneFrame("ctx-1"))
	})
	url := srv.WSURL("/tts/websocket")
*/
package testutil
