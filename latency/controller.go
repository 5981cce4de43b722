package latency

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/events"
	"github.com/BaSui01/speechflow/internal/metrics"
)

// 默认参数
const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Update 一次测量结果。Err 非空时 BufferDuration 保持上一次的值。
type Update struct {
	RTT            time.Duration
	BufferDuration time.Duration
	Err            error
}

// Option 配置 Controller
type Option func(*Controller)

// WithInterval 测量间隔
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTimeout 单次测量超时
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDefault 首次测量完成前使用的缓冲时长
func WithDefault(d time.Duration) Option {
	return func(c *Controller) { c.current.Store(int64(d)) }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics 注入指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller 周期性测量时延并维护当前缓冲时长，可直接作为播放器的时长来源。
type Controller struct {
	client   HTTPDoer
	url      string
	interval time.Duration
	timeout  time.Duration

	current atomic.Int64
	updates events.Emitter[Update]

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewController 创建控制器，url 为测量目标。
func NewController(client HTTPDoer, url string, opts ...Option) *Controller {
	c := &Controller{
		client:   client,
		url:      url,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   zap.NewNop(),
	}
	c.current.Store(int64(MinBufferDuration))
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "latency"))
	return c
}

// BufferDuration 当前缓冲时长，并发安全。
func (c *Controller) BufferDuration() time.Duration {
	return time.Duration(c.current.Load())
}

// Updates 每次测量完成后发出
func (c *Controller) Updates() *events.Emitter[Update] { return &c.updates }

// Measure 立即测量一次并更新缓冲时长。
func (c *Controller) Measure(ctx context.Context) Update {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rtt, err := Ping(ctx, c.client, c.url)
	c.metrics.RecordPing(rtt, err)

	u := Update{RTT: rtt, Err: err}
	if err != nil {
		u.BufferDuration = c.BufferDuration()
		c.logger.Warn("ping failed", zap.String("url", c.url), zap.Error(err))
	} else {
		u.BufferDuration = BufferDurationFor(rtt)
		c.current.Store(int64(u.BufferDuration))
		c.metrics.SetBufferDuration(u.BufferDuration)
		c.logger.Debug("latency measured",
			zap.Duration("rtt", rtt),
			zap.Duration("buffer_duration", u.BufferDuration),
		)
	}
	c.updates.Emit(u)
	return u
}

// Run 立即测量一次，之后每个间隔测量一次，直到 ctx 结束。
// ctx 已结束时直接返回，不发出测量。
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Measure(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
