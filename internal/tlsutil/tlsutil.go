package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTLSConfig TLS 1.2 起步，仅 AEAD 密码套件。
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

func baseTransport() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// SecureTransport REST 请求用的 Transport，允许 h2。
func SecureTransport() *http.Transport {
	t := baseTransport()
	t.ForceAttemptHTTP2 = true
	t.MaxIdleConns = 100
	t.ExpectContinueTimeout = 1 * time.Second
	return t
}

// WebSocketTransport 拨号用的 Transport，ALPN 固定为 http/1.1。
func WebSocketTransport() *http.Transport {
	t := baseTransport()
	t.TLSClientConfig.NextProtos = []string{"http/1.1"}
	t.ForceAttemptHTTP2 = false
	return t
}

// SecureHTTPClient 等价于 &http.Client{Timeout: timeout}，附带 TLS 加固。
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(),
	}
}

// WebSocketHTTPClient 供 WebSocket 拨号使用。不设 Timeout，超时由拨号 ctx 控制。
func WebSocketHTTPClient() *http.Client {
	return &http.Client{Transport: WebSocketTransport()}
}
