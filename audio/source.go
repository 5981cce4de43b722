package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/speechflow/events"
)

const initialCapacity = 1024

// SourceEventType 采样缓冲事件类型。
type SourceEventType string

const (
	// SourceEnqueue 写入新数据后触发。
	SourceEnqueue SourceEventType = "enqueue"
	// SourceWait 读取方因数据不足即将挂起时触发，可用作欠载信号。
	SourceWait SourceEventType = "wait"
	// SourceRead 挂起的读取方被唤醒后触发。
	SourceRead SourceEventType = "read"
	// SourceClose 关闭时触发，仅一次。
	SourceClose SourceEventType = "close"
)

// SourceEvent 携带事件发生时的读写位置。
type SourceEvent struct {
	Type       SourceEventType
	ReadIndex  int
	WriteIndex int
}

// Whence 指定 Seek 的基准位置。
type Whence int

const (
	SeekStart Whence = iota
	SeekCurrent
	SeekEnd
)

func (w Whence) String() string {
	switch w {
	case SeekStart:
		return "start"
	case SeekCurrent:
		return "current"
	case SeekEnd:
		return "end"
	default:
		return fmt.Sprintf("whence(%d)", int(w))
	}
}

// Source 是单生产者/单消费者的可增长采样缓冲。
//
// 不变式：0 <= readIndex <= writeIndex <= len(buf)，closed 单调。
// notify 在每次写入时被替换并关闭旧通道，关闭时关闭当前通道，
// 挂起的读取方由此得到广播唤醒。
type Source[T Sample] struct {
	mu         sync.Mutex
	buf        []T
	readIndex  int
	writeIndex int
	closed     bool
	notify     chan struct{}

	format  Format
	events  events.Emitter[SourceEvent]
	scratch []T
}

// NewSource 创建空缓冲，初始容量 1024。
func NewSource[T Sample](format Format) *Source[T] {
	return &Source[T]{
		buf:    make([]T, initialCapacity),
		notify: make(chan struct{}),
		format: format,
	}
}

// Enqueue 追加片段，容量不足时倍增。关闭后返回 ErrSourceClosed 且不修改缓冲。
func (s *Source[T]) Enqueue(fragment []T) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}

	required := s.writeIndex + len(fragment)
	if required > len(s.buf) {
		capacity := max(len(s.buf), initialCapacity)
		for capacity < required {
			capacity *= 2
		}
		grown := make([]T, capacity)
		copy(grown, s.buf[:s.writeIndex])
		s.buf = grown
	}
	copy(s.buf[s.writeIndex:], fragment)
	s.writeIndex = required
	wake := s.notify
	s.notify = make(chan struct{})
	ev := s.eventLocked(SourceEnqueue)
	s.mu.Unlock()

	// 先投递 enqueue 再唤醒，订阅者看到的事件顺序与因果一致
	s.events.Emit(ev)
	close(wake)
	return nil
}

// Read 读取最多 len(dst) 个采样。
//
// 可用数据不足且未关闭时挂起，直到写入或关闭后重新检查。
// 返回值小于 len(dst) 只发生在已关闭且数据耗尽时。
// ctx 取消时返回 0 和 ctx.Err()，读位置不变。
func (s *Source[T]) Read(ctx context.Context, dst []T) (int, error) {
	want := len(dst)

	s.mu.Lock()
	for s.readIndex+want > s.writeIndex && !s.closed {
		notify := s.notify
		ev := s.eventLocked(SourceWait)
		s.mu.Unlock()

		s.events.Emit(ev)
		select {
		case <-notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}

		s.mu.Lock()
		ev = s.eventLocked(SourceRead)
		s.mu.Unlock()
		s.events.Emit(ev)
		s.mu.Lock()
	}

	n := copy(dst, s.buf[s.readIndex:s.writeIndex])
	s.readIndex += n
	s.mu.Unlock()
	return n, nil
}

// Seek 只移动读位置。目标小于 0 或超过 writeIndex 时返回 ErrSeekOutOfBounds。
func (s *Source[T]) Seek(offset int, whence Whence) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var base int
	switch whence {
	case SeekStart:
	case SeekCurrent:
		base = s.readIndex
	case SeekEnd:
		base = s.writeIndex
	default:
		return s.readIndex, ErrInvalidWhence.WithCause(fmt.Errorf("%s", whence))
	}

	target := base + offset
	if target < 0 || target > s.writeIndex {
		return s.readIndex, ErrSeekOutOfBounds.WithCause(
			fmt.Errorf("target %d outside [0, %d]", target, s.writeIndex))
	}
	s.readIndex = target
	return target, nil
}

// Close 关闭缓冲并永久唤醒读取方。可重复调用，close 事件只触发一次。
func (s *Source[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wake := s.notify
	ev := s.eventLocked(SourceClose)
	s.mu.Unlock()

	s.events.Emit(ev)
	close(wake)
	return nil
}

func (s *Source[T]) eventLocked(t SourceEventType) SourceEvent {
	return SourceEvent{Type: t, ReadIndex: s.readIndex, WriteIndex: s.writeIndex}
}

// DurationToSampleCount 返回 floor(秒数 * 采样率)，负时长视为 0。
func (s *Source[T]) DurationToSampleCount(d time.Duration) int {
	return DurationToSampleCount(d, s.format.SampleRate)
}

// DurationToSampleCount 以整数运算计算采样数，避免浮点舍入。
func DurationToSampleCount(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}

// Closed 报告是否已关闭。
func (s *Source[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ReadIndex 当前读位置。
func (s *Source[T]) ReadIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex
}

// WriteIndex 当前写位置。
func (s *Source[T]) WriteIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeIndex
}

// Capacity 当前底层数组长度。
func (s *Source[T]) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *Source[T]) SampleRate() int { return s.format.SampleRate }

func (s *Source[T]) Format() Format { return s.format }

// Events 返回缓冲事件的订阅入口。
func (s *Source[T]) Events() *events.Emitter[SourceEvent] { return &s.events }
