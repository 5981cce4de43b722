package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/events"
	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/internal/retry"
	"github.com/BaSui01/speechflow/types"
)

// URLFactory 每次连接尝试前调用，返回目标地址。
type URLFactory func(ctx context.Context) (string, error)

// StaticURL 返回固定地址的 URLFactory。
func StaticURL(u string) URLFactory {
	return func(context.Context) (string, error) { return u, nil }
}

// State 连接状态
type State string

const (
	StateClosed       State = "closed"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
)

// CloseEvent 连接关闭事件。Code 为 -1 表示没有收到关闭帧。
type CloseEvent struct {
	Code   int
	Reason string
	Err    error
	// WillReconnect 表示随后会尝试重连
	WillReconnect bool
}

// 包级错误
var (
	ErrNotConnected     = types.NewError(types.ErrNotConnected, "socket is not connected")
	ErrAlreadyConnected = types.NewError(types.ErrUsage, "socket is already connected")
	ErrConnectFailed    = types.NewError(types.ErrConnection, "socket failed to connect")
	ErrUnsupportedFrame = types.NewError(types.ErrUsage, "payload must be string or []byte")
)

// Option 配置 ReconnectingSocket
type Option func(*ReconnectingSocket)

// WithDialer 替换默认的 coder/websocket 拨号器
func WithDialer(d Dialer) Option {
	return func(s *ReconnectingSocket) { s.dialer = d }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *ReconnectingSocket) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReconnect 设置断线重连策略，policy 为 nil 时关闭重连
func WithReconnect(policy *retry.Policy) Option {
	return func(s *ReconnectingSocket) { s.policy = policy }
}

// WithPingInterval 启用保活 ping
func WithPingInterval(d time.Duration) Option {
	return func(s *ReconnectingSocket) { s.pingInterval = d }
}

// WithMetrics 注入指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(s *ReconnectingSocket) { s.metrics = c }
}

// ReconnectingSocket 可重连的 WebSocket 包装。
//
// 状态迁移：closed → connecting → open；意外断开时
// open → reconnecting → open（成功）或 closed（放弃）；
// Disconnect 在任何状态下回到 closed 并停止重连。
type ReconnectingSocket struct {
	id           string
	dialer       Dialer
	policy       *retry.Policy
	pingInterval time.Duration
	logger       *zap.Logger
	metrics      *metrics.Collector

	mu         sync.Mutex
	state      State
	conn       Conn
	urlFactory URLFactory
	lifeCancel context.CancelFunc
	lifeCtx    context.Context

	writeMu sync.Mutex

	open    events.Emitter[struct{}]
	close   events.Emitter[CloseEvent]
	errs    events.Emitter[error]
	message events.Emitter[Message]
}

// NewReconnectingSocket 创建未连接的 socket，默认启用重连。
func NewReconnectingSocket(opts ...Option) *ReconnectingSocket {
	s := &ReconnectingSocket{
		id:     uuid.NewString(),
		dialer: WebSocketDialer{},
		policy: retry.DefaultPolicy(),
		logger: zap.NewNop(),
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "socket"), zap.String("socket_id", s.id))
	return s
}

// ID 连接标识，用于日志关联。
func (s *ReconnectingSocket) ID() string { return s.id }

// State 当前状态
func (s *ReconnectingSocket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OpenEvents 连接（或重连）成功事件
func (s *ReconnectingSocket) OpenEvents() *events.Emitter[struct{}] { return &s.open }

// CloseEvents 连接关闭事件
func (s *ReconnectingSocket) CloseEvents() *events.Emitter[CloseEvent] { return &s.close }

// ErrorEvents 连接错误事件
func (s *ReconnectingSocket) ErrorEvents() *events.Emitter[error] { return &s.errs }

// MessageEvents 入站帧事件，在读 goroutine 中按到达顺序同步投递
func (s *ReconnectingSocket) MessageEvents() *events.Emitter[Message] { return &s.message }

// Connect 建立连接，成功（open）后返回 nil。
// 拨号失败时发出 error 事件并返回 ErrConnectFailed；首次连接不重试。
func (s *ReconnectingSocket) Connect(ctx context.Context, factory URLFactory) error {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.urlFactory = factory
	s.lifeCtx, s.lifeCancel = context.WithCancel(context.Background())
	lifeCtx := s.lifeCtx
	s.mu.Unlock()

	conn, err := s.dial(ctx, factory)
	if err != nil {
		s.mu.Lock()
		if s.lifeCtx == lifeCtx {
			s.state = StateClosed
			s.lifeCancel()
		}
		s.mu.Unlock()

		s.metrics.RecordSocketEvent("error")
		s.errs.Emit(err)
		return err
	}

	if !s.install(lifeCtx, conn) {
		// Disconnect 在拨号期间发生
		_ = conn.Close(StatusNormalClosure, "disconnected")
		return ErrConnectFailed.WithCause(context.Canceled)
	}
	s.logger.Info("socket connected")
	return nil
}

func (s *ReconnectingSocket) dial(ctx context.Context, factory URLFactory) (Conn, error) {
	target, err := factory(ctx)
	if err != nil {
		return nil, ErrConnectFailed.WithCause(fmt.Errorf("resolve url: %w", err))
	}
	conn, err := s.dialer.Dial(ctx, target)
	if err != nil {
		return nil, ErrConnectFailed.WithCause(err).WithRetryable(true)
	}
	return conn, nil
}

// install 把新连接设为当前连接并启动读循环与保活。生命周期已结束时返回 false。
func (s *ReconnectingSocket) install(lifeCtx context.Context, conn Conn) bool {
	s.mu.Lock()
	if s.lifeCtx != lifeCtx || lifeCtx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	s.state = StateOpen
	s.mu.Unlock()

	go s.readLoop(lifeCtx, conn)
	if s.pingInterval > 0 {
		go s.keepalive(lifeCtx, conn)
	}

	s.metrics.RecordSocketEvent("open")
	s.open.Emit(struct{}{})
	return true
}

func (s *ReconnectingSocket) readLoop(ctx context.Context, conn Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			s.dropped(ctx, conn, err)
			return
		}
		s.metrics.RecordFrame("in", typ.String())
		s.message.Emit(Message{Type: typ, Data: data})
	}
}

// dropped 处理读失败。旧连接或已主动断开时忽略。
func (s *ReconnectingSocket) dropped(lifeCtx context.Context, conn Conn, err error) {
	s.mu.Lock()
	if s.conn != conn || lifeCtx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	reconnect := s.policy != nil
	if reconnect {
		s.state = StateReconnecting
	} else {
		s.state = StateClosed
		s.lifeCancel()
	}
	s.mu.Unlock()

	code, reason := closeInfo(err)
	s.logger.Warn("socket dropped",
		zap.Int("code", code),
		zap.String("reason", reason),
		zap.Bool("reconnect", reconnect),
		zap.Error(err),
	)
	_ = conn.Close(StatusGoingAway, "read failed")

	s.metrics.RecordSocketEvent("close")
	s.close.Emit(CloseEvent{Code: code, Reason: reason, Err: err, WillReconnect: reconnect})

	if reconnect {
		go s.reconnectLoop(lifeCtx)
	}
}

func (s *ReconnectingSocket) reconnectLoop(lifeCtx context.Context) {
	s.mu.Lock()
	factory := s.urlFactory
	s.mu.Unlock()

	var conn Conn
	retryer := retry.New(s.policy, s.logger)
	err := retryer.Do(lifeCtx, func(attempt int) error {
		s.metrics.RecordSocketEvent("reconnect")
		c, err := s.dial(lifeCtx, factory)
		if err != nil {
			s.logger.Debug("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		if lifeCtx.Err() != nil {
			return
		}
		s.mu.Lock()
		if s.lifeCtx == lifeCtx {
			s.state = StateClosed
			s.lifeCancel()
		}
		s.mu.Unlock()

		s.logger.Error("giving up reconnect", zap.Error(err))
		s.metrics.RecordSocketEvent("error")
		s.errs.Emit(ErrConnectFailed.WithCause(err))
		return
	}

	if !s.install(lifeCtx, conn) {
		_ = conn.Close(StatusNormalClosure, "disconnected")
		return
	}
	s.logger.Info("socket reconnected")
}

func (s *ReconnectingSocket) keepalive(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		current := s.conn == conn
		s.mu.Unlock()
		if !current {
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, s.pingInterval)
		err := conn.Ping(pingCtx)
		cancel()
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("keepalive ping failed", zap.Error(err))
			// 关闭连接让读循环走断线重连路径
			_ = conn.Close(StatusGoingAway, "ping timeout")
			return
		}
	}
}

// Send 发送一帧：string 为文本帧，[]byte 为二进制帧。未连接时返回 ErrNotConnected。
func (s *ReconnectingSocket) Send(ctx context.Context, payload any) error {
	var (
		typ  MessageType
		data []byte
	)
	switch p := payload.(type) {
	case string:
		typ, data = MessageText, []byte(p)
	case []byte:
		typ, data = MessageBinary, p
	default:
		return ErrUnsupportedFrame.WithCause(fmt.Errorf("got %T", payload))
	}

	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()
	if !open || conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.Write(ctx, typ, data); err != nil {
		return types.NewError(types.ErrConnection, "socket write failed").WithCause(err)
	}
	s.metrics.RecordFrame("out", typ.String())
	return nil
}

// Disconnect 关闭连接并停止重连。可重复调用，close 事件至多发出一次。
func (s *ReconnectingSocket) Disconnect() error {
	s.mu.Lock()
	cancel := s.lifeCancel
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.mu.Unlock()

	if conn == nil {
		if cancel != nil {
			cancel()
		}
		return nil
	}

	// 先发送关闭帧再取消生命周期，避免读循环以取消方式中断连接
	err := conn.Close(StatusNormalClosure, "")
	if cancel != nil {
		cancel()
	}
	s.logger.Info("socket disconnected")
	s.metrics.RecordSocketEvent("close")
	s.close.Emit(CloseEvent{Code: StatusNormalClosure, Err: err})
	return nil
}
