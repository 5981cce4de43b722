package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/events"
	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/transport"
	"github.com/BaSui01/speechflow/types"
)

// WebSocketPath 流式识别端点
const WebSocketPath = "/stt/websocket"

// 控制指令
const (
	CommandFinalize = "finalize"
	CommandDone     = "done"
)

// 结果类型
const (
	TypeTranscript = "transcript"
	TypeFlushDone  = "flush_done"
	TypeDone       = "done"
	TypeError      = "error"
)

// 默认识别参数
const (
	DefaultModel      = "ink-whisper"
	DefaultLanguage   = "en"
	DefaultEncoding   = "pcm_s16le"
	DefaultSampleRate = 16000
)

var ErrNotConnected = types.NewError(types.ErrNotConnected, "not connected to websocket, call Connect first")

// Options 识别参数，零值字段使用默认值。
type Options struct {
	Model      string
	Language   string
	Encoding   string
	SampleRate int
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	if o.Encoding == "" {
		o.Encoding = DefaultEncoding
	}
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	return o
}

// TranscriptionResult 一条识别结果。
type TranscriptionResult struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Text      string  `json:"text,omitempty"`
	IsFinal   bool    `json:"is_final,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Language  string  `json:"language,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// Socket 识别客户端依赖的连接能力。
type Socket interface {
	Send(ctx context.Context, payload any) error
	State() transport.State
	MessageEvents() *events.Emitter[transport.Message]
}

type connector interface {
	Connect(ctx context.Context, factory transport.URLFactory) error
	Disconnect() error
}

// Option 配置 WebSocket
type Option func(*WebSocket)

// WithSocket 使用外部连接
func WithSocket(s Socket) Option {
	return func(w *WebSocket) { w.socket = s }
}

// WithSocketOptions 传给默认 ReconnectingSocket 的选项
func WithSocketOptions(opts ...transport.Option) Option {
	return func(w *WebSocket) { w.socketOpts = append(w.socketOpts, opts...) }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(w *WebSocket) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics 注入指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(w *WebSocket) { w.metrics = m }
}

// WebSocket 流式识别客户端。
type WebSocket struct {
	id         string
	http       *transport.HTTPClient
	opts       Options
	socket     Socket
	socketOpts []transport.Option

	connectMu sync.Mutex
	results   events.Emitter[TranscriptionResult]

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewWebSocket 创建识别客户端。
func NewWebSocket(httpClient *transport.HTTPClient, opts Options, options ...Option) *WebSocket {
	w := &WebSocket{
		id:     uuid.NewString(),
		http:   httpClient,
		opts:   opts.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "stt_websocket"), zap.String("stt_session", w.id))

	if w.socket == nil {
		sockOpts := append([]transport.Option{
			transport.WithLogger(w.logger),
			transport.WithMetrics(w.metrics),
		}, w.socketOpts...)
		w.socket = transport.NewReconnectingSocket(sockOpts...)
	}
	w.socket.MessageEvents().On(w.handle)
	return w
}

// ID 客户端会话标识，服务端未给出 request_id 时用于结果关联。
func (w *WebSocket) ID() string { return w.id }

// Options 生效的识别参数
func (w *WebSocket) Options() Options { return w.opts }

// Results 识别结果事件
func (w *WebSocket) Results() *events.Emitter[TranscriptionResult] { return &w.results }

// Connected 连接是否处于 open
func (w *WebSocket) Connected() bool {
	return w.socket.State() == transport.StateOpen
}

// URL 构造连接地址。
func (w *WebSocket) URL(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("model", w.opts.Model)
	q.Set("cartesia_version", w.http.Version())
	q.Set("encoding", w.opts.Encoding)
	q.Set("sample_rate", strconv.Itoa(w.opts.SampleRate))
	if w.opts.Language != "" {
		q.Set("language", w.opts.Language)
	}
	key, err := w.http.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve api key: %w", err)
	}
	if key != "" {
		q.Set("api_key", key)
	}
	return transport.WebSocketURL(w.http.BaseURL(), WebSocketPath, q)
}

// Connect 建立连接。
func (w *WebSocket) Connect(ctx context.Context) error {
	c, ok := w.socket.(connector)
	if !ok {
		if !w.Connected() {
			return ErrNotConnected
		}
		return nil
	}
	return c.Connect(ctx, w.URL)
}

// ensureConnected 未连接时先连接，并发调用只拨号一次。
func (w *WebSocket) ensureConnected(ctx context.Context) error {
	if w.Connected() {
		return nil
	}
	w.connectMu.Lock()
	defer w.connectMu.Unlock()
	if w.Connected() {
		return nil
	}
	err := w.Connect(ctx)
	if errors.Is(err, transport.ErrAlreadyConnected) {
		// 正在重连，交给 Send 判断
		return nil
	}
	return err
}

// Send 发送一段音频。
func (w *WebSocket) Send(ctx context.Context, audio []byte) error {
	return w.send(ctx, audio)
}

// Finalize 请求服务端冲刷已缓冲的音频，完成后收到 flush_done。
func (w *WebSocket) Finalize(ctx context.Context) error {
	return w.send(ctx, CommandFinalize)
}

// Done 结束识别会话，服务端回复 done。
func (w *WebSocket) Done(ctx context.Context) error {
	return w.send(ctx, CommandDone)
}

func (w *WebSocket) send(ctx context.Context, payload any) error {
	if err := w.ensureConnected(ctx); err != nil {
		return err
	}
	if err := w.socket.Send(ctx, payload); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			return ErrNotConnected
		}
		return err
	}
	return nil
}

// Disconnect 断开连接。
func (w *WebSocket) Disconnect() error {
	if c, ok := w.socket.(connector); ok {
		return c.Disconnect()
	}
	return nil
}

func (w *WebSocket) handle(msg transport.Message) {
	if !msg.IsText() {
		return
	}
	result := parseResult(msg.Data)
	if result.RequestID == "" {
		result.RequestID = w.id
	}
	w.metrics.RecordSTTResult(result.Type)
	if result.Type == TypeError {
		w.logger.Warn("transcription error", zap.String("message", result.Message))
	}
	w.results.Emit(result)
}

// parseResult 只保留结果类型对应的字段；无法解析时返回 error 结果。
func parseResult(data []byte) TranscriptionResult {
	var raw TranscriptionResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return TranscriptionResult{Type: TypeError, Message: fmt.Sprintf("failed to parse message: %v", err)}
	}

	result := TranscriptionResult{Type: raw.Type, RequestID: raw.RequestID}
	switch raw.Type {
	case TypeTranscript:
		result.Text = raw.Text
		result.IsFinal = raw.IsFinal
		result.Duration = raw.Duration
		result.Language = raw.Language
	case TypeError:
		result.Message = raw.Message
	}
	return result
}
