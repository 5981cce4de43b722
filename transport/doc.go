// Package transport 提供到语音服务的连接层。
//
// ReconnectingSocket 以状态机包装一个 Dialer/Conn 对，对外暴露
// open、close、error、message 四类事件；读循环在独立 goroutine 中按
// 到达顺序同步投递消息。连接意外断开时先发出 close，再按指数退避重连，
// 每次尝试都重新调用 URLFactory 以获取新的凭据或查询参数。
//
// HTTPClient 负责 REST 调用：统一注入鉴权与版本头、限速、
// 把非 2xx 响应转换为 types.ErrUpstream 错误。
package transport
