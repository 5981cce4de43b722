// Package tlsutil 为 REST 请求与 WebSocket 拨号提供统一的 TLS 加固配置
// （TLS 1.2+，仅 AEAD 密码套件）。WebSocket 升级只能走 HTTP/1.1，
// 因此拨号使用单独的、不协商 h2 的 Transport。
package tlsutil
