package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/BaSui01/speechflow/internal/tlsutil"
)

// MessageType 帧类型。
type MessageType int

const (
	MessageText MessageType = iota + 1
	MessageBinary
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Message 一个入站帧。
type Message struct {
	Type MessageType
	Data []byte
}

// IsText 是否为文本帧。
func (m Message) IsText() bool { return m.Type == MessageText }

// 关闭状态码，取值同 RFC 6455。
const (
	StatusNormalClosure = int(websocket.StatusNormalClosure)
	StatusGoingAway     = int(websocket.StatusGoingAway)
)

// Conn 是单条已建立的双向连接。Read 只由一个 goroutine 调用。
type Conn interface {
	Read(ctx context.Context) (MessageType, []byte, error)
	Write(ctx context.Context, typ MessageType, data []byte) error
	Ping(ctx context.Context) error
	Close(code int, reason string) error
}

// Dialer 建立连接。
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// DefaultReadLimit 单帧上限。服务端音频片段经 base64 后常超过库默认的 32KiB。
const DefaultReadLimit = 16 << 20

// WebSocketDialer 基于 coder/websocket 的 Dialer。
type WebSocketDialer struct {
	HTTPClient *http.Client
	Header     http.Header
	ReadLimit  int64
}

// defaultWSClient 未指定 HTTPClient 时使用，升级请求走 HTTP/1.1。
var defaultWSClient = tlsutil.WebSocketHTTPClient()

// Dial 实现 Dialer。
func (d WebSocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	client := d.HTTPClient
	if client == nil {
		client = defaultWSClient
	}
	c, resp, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient: client,
		HTTPHeader: d.Header,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	c.SetReadLimit(limit)
	return NewWebSocketConn(c), nil
}

// WebSocketConn 把 *websocket.Conn 适配为 Conn。
type WebSocketConn struct {
	c *websocket.Conn
}

// NewWebSocketConn 包装已建立的连接，服务端测试中也可直接使用。
func NewWebSocketConn(c *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{c: c}
}

func (w *WebSocketConn) Read(ctx context.Context) (MessageType, []byte, error) {
	typ, data, err := w.c.Read(ctx)
	if err != nil {
		return 0, nil, err
	}
	if typ == websocket.MessageBinary {
		return MessageBinary, data, nil
	}
	return MessageText, data, nil
}

func (w *WebSocketConn) Write(ctx context.Context, typ MessageType, data []byte) error {
	wsType := websocket.MessageText
	if typ == MessageBinary {
		wsType = websocket.MessageBinary
	}
	return w.c.Write(ctx, wsType, data)
}

func (w *WebSocketConn) Ping(ctx context.Context) error { return w.c.Ping(ctx) }

func (w *WebSocketConn) Close(code int, reason string) error {
	return w.c.Close(websocket.StatusCode(code), reason)
}

// closeInfo 从读错误中提取关闭码与原因，非关闭帧返回 -1。
func closeInfo(err error) (int, string) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return int(ce.Code), ce.Reason
	}
	return -1, ""
}

// WebSocketURL 把 http(s) 基础地址转换为 ws(s) 地址并拼接路径与查询参数。
func WebSocketURL(baseURL, path string, query url.Values) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	case "":
		// 只给了主机名时默认加密连接
		u, err = url.Parse("wss://" + baseURL)
		if err != nil {
			return "", fmt.Errorf("parse base url: %w", err)
		}
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}
