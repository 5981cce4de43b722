// Package stt 实现流式语音识别 WebSocket 客户端。
//
// 调用方以二进制帧发送 PCM 音频，发送 "finalize" 请求冲刷当前结果，
// 发送 "done" 结束会话；识别结果通过 Results 事件按到达顺序投递。
package stt
