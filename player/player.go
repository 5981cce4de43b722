package player

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/audio"
	"github.com/BaSui01/speechflow/events"
	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/types"
)

// DefaultBufferDuration 未配置时的分段时长
const DefaultBufferDuration = 10 * time.Millisecond

// ErrUninitialized 在首次 Play 之前调用播放控制。
var ErrUninitialized = types.NewError(types.ErrUninitialized, "renderer not initialized, call Play first")

// Segment 一个已调度的分段，时间单位为秒。
type Segment struct {
	Index    int
	StartAt  float64
	Duration float64
	Samples  int
}

// Option 配置 Player
type Option func(*Player)

// WithRenderer 设置渲染器工厂，默认 VirtualRenderer
func WithRenderer(f RendererFactory) Option {
	return func(p *Player) { p.factory = f }
}

// WithBufferDuration 设置分段时长来源，latency.Controller 可直接传入
func WithBufferDuration(d DurationSource) Option {
	return func(p *Player) { p.duration = d }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics 注入指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Player) { p.metrics = m }
}

// Player 把采样流无缝地排入渲染器。
type Player struct {
	factory  RendererFactory
	duration DurationSource

	mu       sync.Mutex
	renderer Renderer

	finish   events.Emitter[struct{}]
	segments events.Emitter[Segment]

	logger  *zap.Logger
	metrics *metrics.Collector
}

// New 创建播放器
func New(opts ...Option) *Player {
	p := &Player{
		factory: func(sampleRate int) (Renderer, error) {
			return NewVirtualRenderer(sampleRate), nil
		},
		duration: FixedDuration(DefaultBufferDuration),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "player"))
	return p
}

// Finish 读到流末尾、最后一段已调度时发出
func (p *Player) Finish() *events.Emitter[struct{}] { return &p.finish }

// Segments 每调度一段发出一次
func (p *Player) Segments() *events.Emitter[Segment] { return &p.segments }

// Play 播放 stream 直到结束，等待所有分段播放完成或 ctx 结束。
// 返回后渲染器保持打开，Pause/Resume/State 仍可用；Stop 或下一次 Play 时关闭。
//
// 每段开始时刻为 max(渲染时钟当前时刻, 上一段结束时刻)，读取阻塞导致
// 调度延后时不会把分段排到过去，数据充足时分段首尾相接。
func (p *Player) Play(ctx context.Context, stream audio.Stream) error {
	rate := stream.SampleRate()
	r, err := p.factory(rate)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.renderer
	p.renderer = r
	p.mu.Unlock()
	if old != nil {
		_ = old.Close(ctx)
	}

	offWait := stream.Events().On(func(ev audio.SourceEvent) {
		if ev.Type == audio.SourceWait {
			p.metrics.RecordUnderrun()
		}
	})
	defer offWait()

	nextStart := r.Now()
	var pending []<-chan struct{}
	for i := 0; ; i++ {
		d := p.duration.BufferDuration()
		if d <= 0 {
			d = DefaultBufferDuration
		}
		p.metrics.SetBufferDuration(d)
		size := stream.DurationToSampleCount(d)
		if size < 1 {
			size = 1
		}

		buf := make([]float32, size)
		n, err := stream.ReadFloat32(ctx, buf)
		if err != nil {
			return err
		}

		if n > 0 {
			startAt := math.Max(r.Now(), nextStart)
			done, err := r.Schedule(buf[:n], startAt)
			if err != nil {
				return err
			}
			seg := Segment{Index: i, StartAt: startAt, Duration: float64(n) / float64(rate), Samples: n}
			nextStart = startAt + seg.Duration
			pending = append(pending, done)

			p.metrics.RecordSegment()
			p.segments.Emit(seg)
		}

		if n < size {
			p.logger.Debug("stream exhausted", zap.Int("segments", len(pending)))
			p.finish.Emit(struct{}{})
			break
		}
	}

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Player) current() (Renderer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer == nil {
		return nil, ErrUninitialized
	}
	return p.renderer, nil
}

// Pause 暂停渲染时钟
func (p *Player) Pause(ctx context.Context) error {
	r, err := p.current()
	if err != nil {
		return err
	}
	return r.Suspend(ctx)
}

// Resume 恢复渲染时钟
func (p *Player) Resume(ctx context.Context) error {
	r, err := p.current()
	if err != nil {
		return err
	}
	return r.Resume(ctx)
}

// Toggle 运行中则暂停，否则恢复
func (p *Player) Toggle(ctx context.Context) error {
	r, err := p.current()
	if err != nil {
		return err
	}
	if r.State() == RendererRunning {
		return r.Suspend(ctx)
	}
	return r.Resume(ctx)
}

// Stop 关闭渲染器，未完成的分段立即结束。
func (p *Player) Stop(ctx context.Context) error {
	r, err := p.current()
	if err != nil {
		return err
	}
	return r.Close(ctx)
}

// State 渲染器状态，Play 之前返回 ErrUninitialized
func (p *Player) State() (RendererState, error) {
	r, err := p.current()
	if err != nil {
		return "", err
	}
	return r.State(), nil
}
