package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/audio"
	"github.com/BaSui01/speechflow/events"
	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/internal/telemetry"
	"github.com/BaSui01/speechflow/transport"
	"github.com/BaSui01/speechflow/types"
)

// WebSocketPath 流式合成端点
const WebSocketPath = "/tts/websocket"

var (
	ErrNotConnected     = types.NewError(types.ErrNotConnected, "not connected to websocket, call Connect first")
	ErrMissingContextID = types.NewError(types.ErrUsage, "context_id is required to continue a context")
)

// Socket 是会话依赖的连接能力，*transport.ReconnectingSocket 实现了它。
type Socket interface {
	Send(ctx context.Context, payload any) error
	State() transport.State
	MessageEvents() *events.Emitter[transport.Message]
	CloseEvents() *events.Emitter[transport.CloseEvent]
	ErrorEvents() *events.Emitter[error]
}

// Connector 由自行管理拨号的 Socket 实现。
type Connector interface {
	Connect(ctx context.Context, factory transport.URLFactory) error
	Disconnect() error
}

// WebSocketOption 配置 WebSocket
type WebSocketOption func(*WebSocket)

// WithFormat 请求未指定 output_format 时使用的格式
func WithFormat(f audio.Format) WebSocketOption {
	return func(w *WebSocket) { w.format = f }
}

// WithSocket 使用外部连接，主要用于测试
func WithSocket(s Socket) WebSocketOption {
	return func(w *WebSocket) { w.socket = s }
}

// WithSocketOptions 传给默认 ReconnectingSocket 的选项
func WithSocketOptions(opts ...transport.Option) WebSocketOption {
	return func(w *WebSocket) { w.socketOpts = append(w.socketOpts, opts...) }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) WebSocketOption {
	return func(w *WebSocket) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics 注入指标收集器
func WithMetrics(m *metrics.Collector) WebSocketOption {
	return func(w *WebSocket) { w.metrics = m }
}

// WebSocket 流式合成客户端。一条连接被所有会话共享。
type WebSocket struct {
	http       *transport.HTTPClient
	format     audio.Format
	socket     Socket
	socketOpts []transport.Option
	mux        *Multiplexer

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewWebSocket 创建客户端。httpClient 提供基础地址、API Key 与协议版本。
func NewWebSocket(httpClient *transport.HTTPClient, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		http:   httpClient,
		format: audio.DefaultFormat(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "tts_websocket"))

	if w.socket == nil {
		sockOpts := append([]transport.Option{
			transport.WithLogger(w.logger),
			transport.WithMetrics(w.metrics),
		}, w.socketOpts...)
		w.socket = transport.NewReconnectingSocket(sockOpts...)
	}
	w.mux = NewMultiplexer(w.socket.MessageEvents(), w.logger, w.metrics)
	return w
}

// Format 默认输出格式
func (w *WebSocket) Format() audio.Format { return w.format }

// Socket 底层连接
func (w *WebSocket) Socket() Socket { return w.socket }

// Multiplexer 入站帧分发器
func (w *WebSocket) Multiplexer() *Multiplexer { return w.mux }

// Connected 连接是否处于 open
func (w *WebSocket) Connected() bool {
	return w.socket.State() == transport.StateOpen
}

// URL 构造连接地址，每次连接尝试都会重新取 API Key。
func (w *WebSocket) URL(ctx context.Context) (string, error) {
	key, err := w.http.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve api key: %w", err)
	}
	q := url.Values{}
	q.Set("api_key", key)
	q.Set("cartesia_version", w.http.Version())
	return transport.WebSocketURL(w.http.BaseURL(), WebSocketPath, q)
}

// Connect 建立连接，open 后返回。
func (w *WebSocket) Connect(ctx context.Context) error {
	c, ok := w.socket.(Connector)
	if !ok {
		if !w.Connected() {
			return ErrNotConnected
		}
		return nil
	}
	return c.Connect(ctx, w.URL)
}

// Disconnect 断开连接。进行中的会话随连接关闭而中止。
func (w *WebSocket) Disconnect() error {
	if c, ok := w.socket.(Connector); ok {
		return c.Disconnect()
	}
	return nil
}

// Stream 发送生成请求并返回会话。
//
// 未指定 context_id 时生成一个；未指定 output_format 时使用客户端默认格式。
// 路由在发送前注册，不会漏掉任何帧。
func (w *WebSocket) Stream(ctx context.Context, req Request, opts StreamOptions) (*Session, error) {
	if !w.Connected() {
		return nil, ErrNotConnected
	}
	if req.ContextID == "" {
		req.ContextID = NewContextID()
	}
	if err := w.fillFormat(&req); err != nil {
		return nil, err
	}
	source, err := audio.NewStream(*req.OutputFormat)
	if err != nil {
		return nil, err
	}

	_, span := telemetry.StartStreamSpan(ctx, req.ContextID, req.ModelID,
		string(req.OutputFormat.Encoding), req.OutputFormat.SampleRate)

	sess := newSession(req.ContextID, source, opts, w.logger, w.metrics, span)
	sess.continuer = w.Continue

	unregister, err := w.mux.Register(req.ContextID, sess.handle)
	if err != nil {
		span.End()
		return nil, err
	}
	sess.onTeardown(unregister)
	sess.attach(w.socket)

	w.metrics.RecordSessionStart()
	sess.transition(StateConnecting)
	if err := w.send(ctx, req); err != nil {
		sess.finish(StateAborted, err)
		return nil, err
	}
	sess.transition(StateStreaming)
	sess.armTimer()

	w.logger.Debug("stream started",
		zap.String("context_id", req.ContextID),
		zap.Duration("timeout", opts.Timeout),
	)
	return sess, nil
}

// Continue 在已有上下文上追加输入，req.ContextID 必填。
func (w *WebSocket) Continue(ctx context.Context, req Request) error {
	if !w.Connected() {
		return ErrNotConnected
	}
	if req.ContextID == "" {
		return ErrMissingContextID
	}
	if err := w.fillFormat(&req); err != nil {
		return err
	}
	req.Continue = true
	return w.send(ctx, req)
}

func (w *WebSocket) fillFormat(req *Request) error {
	if req.OutputFormat == nil {
		f := w.format
		req.OutputFormat = &f
	}
	return req.OutputFormat.Validate()
}

func (w *WebSocket) send(ctx context.Context, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return types.NewError(types.ErrUsage, "marshal request").WithCause(err)
	}
	if err := w.socket.Send(ctx, string(data)); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			return ErrNotConnected
		}
		return err
	}
	return nil
}
