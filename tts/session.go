package tts

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/audio"
	"github.com/BaSui01/speechflow/events"
	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/internal/telemetry"
	"github.com/BaSui01/speechflow/transport"
	"github.com/BaSui01/speechflow/types"
)

// State 会话状态
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
	StateTimedOut   State = "timed_out"
)

// Terminal 是否为终态。终态不会再迁移。
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateAborted, StateTimedOut:
		return true
	default:
		return false
	}
}

// 会话终止原因
var (
	ErrStopped         = types.NewError(types.ErrAborted, "session stopped")
	ErrInactive        = types.NewError(types.ErrTimeout, "no frame received within timeout")
	ErrTransportClosed = types.NewError(types.ErrConnection, "transport closed")
)

// StreamOptions 单次流式请求的选项
type StreamOptions struct {
	// Timeout 两帧之间允许的最长间隔，<= 0 表示不限
	Timeout time.Duration
}

// Session 绑定一个 context_id 的生命周期：一个出站请求、一个 audio.Stream。
//
// 终止触发源（done 帧、连接关闭、超时、Stop、片段解码失败）都汇入 finish，
// 拆除动作只执行一次。
type Session struct {
	contextID string
	source    audio.Stream
	timeout   time.Duration
	continuer func(ctx context.Context, req Request) error

	logger  *zap.Logger
	metrics *metrics.Collector
	span    trace.Span
	started time.Time

	mu           sync.Mutex
	state        State
	err          error
	timer        *time.Timer
	modelLatency time.Duration
	seenFrame    bool

	finished bool
	done     chan struct{}
	teardown []func()

	messages   events.Emitter[string]
	timestamps events.Emitter[WordTimestamps]
	errs       events.Emitter[error]
	states     events.Emitter[State]
}

func newSession(contextID string, source audio.Stream, opts StreamOptions, logger *zap.Logger, m *metrics.Collector, span trace.Span) *Session {
	return &Session{
		contextID: contextID,
		source:    source,
		timeout:   opts.Timeout,
		logger:    logger.With(zap.String("context_id", contextID)),
		metrics:   m,
		span:      span,
		started:   time.Now(),
		state:     StateIdle,
		done:      make(chan struct{}),
	}
}

// ContextID 会话的上下文 ID
func (s *Session) ContextID() string { return s.contextID }

// Source 会话写入的采样流，交给播放器读取
func (s *Session) Source() audio.Stream { return s.source }

// Messages 每个分到本会话的原始 JSON 帧
func (s *Session) Messages() *events.Emitter[string] { return &s.messages }

// Timestamps 词时间戳
func (s *Session) Timestamps() *events.Emitter[WordTimestamps] { return &s.timestamps }

// Errors 服务端 type="error" 帧。只转发，不终止会话。
func (s *Session) Errors() *events.Emitter[error] { return &s.errs }

// StateChanges 状态迁移
func (s *Session) StateChanges() *events.Emitter[State] { return &s.states }

// State 当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err 终止原因。completed 时为 nil。
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ModelLatency 首个音频帧报告的 step_time，尚未收到时为 0。
func (s *Session) ModelLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelLatency
}

// Done 会话进入终态后关闭
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait 阻塞到终态或 ctx 结束。
func (s *Session) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.state, s.err
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Stop 中止会话，可重复调用。
func (s *Session) Stop() {
	s.finish(StateAborted, ErrStopped)
}

// Continue 以本会话的 context_id 追加输入。
func (s *Session) Continue(ctx context.Context, req Request) error {
	if s.State().Terminal() {
		return ErrSessionFinished.WithContextID(s.contextID)
	}
	req.ContextID = s.contextID
	return s.continuer(ctx, req)
}

// ErrSessionFinished 会话已结束
var ErrSessionFinished = types.NewError(types.ErrUsage, "session already finished")

// transition 非终态之间的迁移；会话已终止时忽略。
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.logger.Debug("session state", zap.String("state", string(to)))
	s.states.Emit(to)
	return true
}

// attach 订阅连接关闭与错误。任一事件都使会话中止。
func (s *Session) attach(sock Socket) {
	offClose := sock.CloseEvents().On(func(ev transport.CloseEvent) {
		s.finish(StateAborted, ErrTransportClosed.WithContextID(s.contextID).WithCause(ev.Err))
	})
	offErr := sock.ErrorEvents().On(func(err error) {
		s.finish(StateAborted, ErrTransportClosed.WithContextID(s.contextID).WithCause(err))
	})
	s.onTeardown(offClose, offErr)
}

func (s *Session) onTeardown(fns ...func()) {
	s.mu.Lock()
	s.teardown = append(s.teardown, fns...)
	s.mu.Unlock()
}

// armTimer 启动不活动计时。
func (s *Session) armTimer() {
	if s.timeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.timer = time.AfterFunc(s.timeout, func() {
		s.finish(StateTimedOut, ErrInactive.WithContextID(s.contextID))
	})
}

// touch 收到任意帧时重置计时。
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil && !s.state.Terminal() {
		s.timer.Reset(s.timeout)
	}
}

// handle 处理分给本会话的一帧，运行在连接读 goroutine 中。
func (s *Session) handle(f Frame) {
	if s.State().Terminal() {
		return
	}
	s.touch()
	s.messages.Emit(f.Raw)

	s.mu.Lock()
	if !s.seenFrame && f.StepTime > 0 {
		s.seenFrame = true
		s.modelLatency = time.Duration(f.StepTime * float64(time.Millisecond))
		s.metrics.RecordModelLatency(s.modelLatency)
	}
	s.mu.Unlock()

	switch f.Type {
	case TypeTimestamps:
		if f.WordTimestamps != nil {
			s.timestamps.Emit(*f.WordTimestamps)
		}
	case TypeError:
		s.logger.Warn("service reported error", zap.Int("status_code", f.StatusCode), zap.String("error", f.Error))
		s.errs.Emit(types.NewError(types.ErrApplication, f.Error).
			WithContextID(s.contextID).
			WithHTTPStatus(f.StatusCode))
	}

	chunk, ok := f.Chunk()
	if !ok {
		return
	}
	if chunk.IsSentinel() {
		s.finish(StateCompleted, nil)
		return
	}

	before := s.source.WriteIndex()
	if err := s.source.EnqueueChunk(chunk); err != nil {
		if errors.Is(err, audio.ErrSourceClosed) {
			return
		}
		s.finish(StateAborted, err)
		return
	}
	s.metrics.RecordSamples(s.source.WriteIndex() - before)
}

// finish 进入终态并拆除资源，只生效一次。
//
// 终态只在锁内确定；拆除、关闭 done 与状态事件都在锁外执行，
// 监听器在回调里再次调用 Stop 或 finish 会直接返回。
func (s *Session) finish(state State, cause error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.state = state
	s.err = cause
	if s.timer != nil {
		s.timer.Stop()
	}
	teardown := s.teardown
	s.teardown = nil
	s.mu.Unlock()

	for _, fn := range teardown {
		fn()
	}
	_ = s.source.Close()

	elapsed := time.Since(s.started)
	s.metrics.RecordSessionEnd(string(state), elapsed)
	telemetry.EndStreamSpan(s.span, string(state), cause, state != StateCompleted)

	fields := []zap.Field{zap.String("state", string(state)), zap.Duration("elapsed", elapsed)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	s.logger.Info("session finished", fields...)

	close(s.done)
	s.states.Emit(state)
}
