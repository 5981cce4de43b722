// Package tts 实现流式语音合成客户端。
//
// 一条 WebSocket 连接上可以并发多个生成上下文（context），每个上下文由
// context_id 标识。Multiplexer 按 context_id 分发入站帧，Session 把分到的
// base64 音频片段解码后写入 audio.Stream，供 player 实时播放。
//
// 基本用法：
//
//	ws := tts.NewWebSocket(httpClient, tts.WithFormat(format))
//	if err := ws.Connect(ctx); err != nil { ... }
//	defer ws.Disconnect()
//
//	sess, err := ws.Stream(ctx, req, tts.StreamOptions{Timeout: 10 * time.Second})
//	state, err := sess.Wait(ctx)
package tts
