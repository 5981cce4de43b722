package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

// WSConn 服务端一侧的连接，附带收帧记录。
type WSConn struct {
	*websocket.Conn
	Request *http.Request
	server  *WSServer
}

// ReadText 读取下一帧文本并记录。
func (c *WSConn) ReadText(ctx context.Context) (string, error) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return "", err
		}
		c.server.record(typ, data)
		if typ == websocket.MessageText {
			return string(data), nil
		}
	}
}

// ReadFrame 读取下一帧（任意类型）并记录。
func (c *WSConn) ReadFrame(ctx context.Context) (websocket.MessageType, []byte, error) {
	typ, data, err := c.Read(ctx)
	if err == nil {
		c.server.record(typ, data)
	}
	return typ, data, err
}

// WriteText 发送文本帧。
func (c *WSConn) WriteText(ctx context.Context, s string) error {
	return c.Write(ctx, websocket.MessageText, []byte(s))
}

// WSHandler 处理一条已升级的连接，返回时连接以正常状态关闭。
type WSHandler func(ctx context.Context, c *WSConn)

// WSServer 基于 httptest 的 WebSocket 服务端。
type WSServer struct {
	*httptest.Server

	mu          sync.Mutex
	text        []string
	binary      [][]byte
	requests    []*http.Request
	connections int
}

// NewWSServer 启动服务端，测试结束时关闭。
func NewWSServer(t *testing.T, handler WSHandler) *WSServer {
	t.Helper()
	s := &WSServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.SetReadLimit(16 << 20)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		s.mu.Lock()
		s.connections++
		s.requests = append(s.requests, r)
		s.mu.Unlock()

		handler(r.Context(), &WSConn{Conn: conn, Request: r, server: s})
	}))
	t.Cleanup(s.Close)
	return s
}

// WSURL 返回 ws:// 地址。
func (s *WSServer) WSURL(path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

func (s *WSServer) record(typ websocket.MessageType, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typ == websocket.MessageText {
		s.text = append(s.text, string(data))
	} else {
		s.binary = append(s.binary, append([]byte(nil), data...))
	}
}

// TextFrames 已收到的文本帧。
func (s *WSServer) TextFrames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.text...)
}

// BinaryFrames 已收到的二进制帧。
func (s *WSServer) BinaryFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.binary...)
}

// Connections 已接受的连接数。
func (s *WSServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

// LastRequest 最近一次升级请求。
func (s *WSServer) LastRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}
