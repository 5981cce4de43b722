// Package mocks 提供测试用的内存实现。
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/BaSui01/speechflow/events"
	"github.com/BaSui01/speechflow/transport"
)

// Socket 内存 socket。入站帧通过 DeliverText 等方法在调用方 goroutine
// 中同步投递，便于精确控制到达顺序。
type Socket struct {
	mu      sync.Mutex
	state   transport.State
	sent    []any
	sendErr error

	open    events.Emitter[struct{}]
	close   events.Emitter[transport.CloseEvent]
	errs    events.Emitter[error]
	message events.Emitter[transport.Message]
}

// NewSocket 返回已处于 open 状态的 socket。
func NewSocket() *Socket {
	return &Socket{state: transport.StateOpen}
}

// WithSendError 让后续 Send 返回 err。
func (s *Socket) WithSendError(err error) *Socket {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
	return s
}

// SetState 设置状态。
func (s *Socket) SetState(st transport.State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Socket) State() transport.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Socket) Send(_ context.Context, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	if s.state != transport.StateOpen {
		return transport.ErrNotConnected
	}
	s.sent = append(s.sent, payload)
	return nil
}

func (s *Socket) OpenEvents() *events.Emitter[struct{}]              { return &s.open }
func (s *Socket) CloseEvents() *events.Emitter[transport.CloseEvent] { return &s.close }
func (s *Socket) ErrorEvents() *events.Emitter[error]                { return &s.errs }
func (s *Socket) MessageEvents() *events.Emitter[transport.Message]  { return &s.message }

// Sent 已发送的文本帧。
func (s *Socket) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.sent {
		if str, ok := p.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// SentBinary 已发送的二进制帧。
func (s *Socket) SentBinary() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, p := range s.sent {
		if b, ok := p.([]byte); ok {
			out = append(out, b)
		}
	}
	return out
}

// DeliverText 投递一帧文本。
func (s *Socket) DeliverText(text string) {
	s.message.Emit(transport.Message{Type: transport.MessageText, Data: []byte(text)})
}

// DeliverJSON 序列化后投递。
func (s *Socket) DeliverJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	s.message.Emit(transport.Message{Type: transport.MessageText, Data: data})
}

// DeliverBinary 投递一帧二进制。
func (s *Socket) DeliverBinary(data []byte) {
	s.message.Emit(transport.Message{Type: transport.MessageBinary, Data: data})
}

// Drop 模拟断线：切换到 closed 并发出 close 事件。
func (s *Socket) Drop(err error) {
	s.SetState(transport.StateClosed)
	s.close.Emit(transport.CloseEvent{Code: -1, Err: err})
}

// Fail 发出 error 事件。
func (s *Socket) Fail(err error) {
	s.errs.Emit(err)
}
