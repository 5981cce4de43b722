package tts

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/events"
	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/transport"
	"github.com/BaSui01/speechflow/types"
)

// ErrContextInUse 同一连接上 context_id 已被活动会话占用。
var ErrContextInUse = types.NewError(types.ErrUsage, "context id is already in use")

// ErrMalformedFrame 入站文本帧不是合法 JSON。
var ErrMalformedFrame = types.NewError(types.ErrProtocol, "malformed frame")

// Handler 接收分发给某个上下文的帧，在连接的读 goroutine 中同步调用。
type Handler func(Frame)

type route struct {
	handler Handler
}

// Multiplexer 按 context_id 把入站帧分发给唯一的路由。
// 未注册的 context_id 被丢弃，一个上下文的帧绝不会交给另一个上下文。
type Multiplexer struct {
	mu     sync.RWMutex
	routes map[string]*route

	errs        events.Emitter[error]
	unsubscribe func()

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewMultiplexer 订阅 messages，直到 Close。
func NewMultiplexer(messages *events.Emitter[transport.Message], logger *zap.Logger, m *metrics.Collector) *Multiplexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := &Multiplexer{
		routes:  make(map[string]*route),
		logger:  logger.With(zap.String("component", "multiplexer")),
		metrics: m,
	}
	mux.unsubscribe = messages.On(mux.Dispatch)
	return mux
}

// Errors 无法归属到任何上下文的协议错误。
func (m *Multiplexer) Errors() *events.Emitter[error] { return &m.errs }

// Register 为 id 注册路由。返回的注销函数可重复调用，且只注销本次注册。
func (m *Multiplexer) Register(id string, h Handler) (func(), error) {
	r := &route{handler: h}

	m.mu.Lock()
	if _, ok := m.routes[id]; ok {
		m.mu.Unlock()
		return nil, ErrContextInUse.WithContextID(id)
	}
	m.routes[id] = r
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		if m.routes[id] == r {
			delete(m.routes, id)
		}
		m.mu.Unlock()
	}, nil
}

// Active 当前注册的上下文数
func (m *Multiplexer) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.routes)
}

// Dispatch 处理一帧入站消息。二进制帧忽略。
func (m *Multiplexer) Dispatch(msg transport.Message) {
	if !msg.IsText() {
		m.metrics.RecordDroppedFrame("binary")
		return
	}

	var resp Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		m.metrics.RecordDroppedFrame("malformed")
		m.logger.Warn("malformed frame", zap.Int("bytes", len(msg.Data)), zap.Error(err))
		m.errs.Emit(ErrMalformedFrame.WithCause(err))
		return
	}

	m.mu.RLock()
	r := m.routes[resp.ContextID]
	m.mu.RUnlock()
	if r == nil {
		m.metrics.RecordDroppedFrame("unknown_context")
		m.logger.Debug("dropping frame for unknown context",
			zap.String("context_id", resp.ContextID),
			zap.String("type", resp.Type),
		)
		return
	}

	r.handler(newFrame(string(msg.Data), resp))
}

// Close 取消订阅。已注册的路由不再收到帧。
func (m *Multiplexer) Close() {
	m.unsubscribe()
}
