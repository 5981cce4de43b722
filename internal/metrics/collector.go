// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil *Collector 的所有记录方法都是空操作，
// 组件在未注入收集器时无需判空。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 连接指标
	socketEvents *prometheus.CounterVec
	socketFrames *prometheus.CounterVec

	// 多路复用指标
	muxDropped *prometheus.CounterVec

	// 会话指标
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	sessionsActive   prometheus.Gauge
	samplesEnqueued  prometheus.Counter
	modelLatency     prometheus.Histogram

	// 播放指标
	segmentsScheduled prometheus.Counter
	bufferUnderruns   prometheus.Counter
	bufferDuration    prometheus.Gauge

	// 延迟指标
	pingDuration *prometheus.HistogramVec

	// 识别指标
	sttResults *prometheus.CounterVec

	registry prometheus.Gatherer
	logger   *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用独立的 Registry，
// 可通过 Gatherer 取回用于暴露 /metrics。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	c := &Collector{
		registry: gatherer,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of REST requests to the speech service",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "REST request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 连接指标
	c.socketEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_events_total",
			Help:      "WebSocket lifecycle events",
		},
		[]string{"event"}, // open, close, error, reconnect
	)

	c.socketFrames = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_frames_total",
			Help:      "WebSocket frames by direction and kind",
		},
		[]string{"direction", "kind"},
	)

	c.muxDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mux_frames_dropped_total",
			Help:      "Inbound frames that could not be routed to a context",
		},
		[]string{"reason"},
	)

	// 会话指标
	c.sessionsStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Total number of stream sessions started",
	})

	c.sessionsFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Stream sessions by terminal state",
		},
		[]string{"state"},
	)

	c.sessionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Stream session lifetime in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"state"},
	)

	c.sessionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of stream sessions not yet terminal",
	})

	c.samplesEnqueued = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_enqueued_total",
		Help:      "Decoded audio samples appended to sources",
	})

	c.modelLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_step_seconds",
		Help:      "Service-reported generation step time of the first frame",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 1, 2},
	})

	// 播放指标
	c.segmentsScheduled = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_segments_total",
		Help:      "Audio segments handed to the renderer",
	})

	c.bufferUnderruns = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_underruns_total",
		Help:      "Reads that had to wait for more audio",
	})

	c.bufferDuration = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "playback_buffer_seconds",
		Help:      "Current look-ahead buffer duration",
	})

	// 延迟指标
	c.pingDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_duration_seconds",
			Help:      "Round trip time to the speech service",
			Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 0.8, 1, 1.5, 3, 6},
		},
		[]string{"status"},
	)

	c.sttResults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_results_total",
			Help:      "Transcription results by type",
		},
		[]string{"type"},
	)

	logger.Debug("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Gatherer 返回可用于 promhttp.HandlerFor 的采集端，注入的 Registerer
// 不支持采集时返回 nil。
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.registry
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 REST 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔌 连接指标记录
// =============================================================================

// RecordSocketEvent 记录连接生命周期事件
func (c *Collector) RecordSocketEvent(event string) {
	if c == nil {
		return
	}
	c.socketEvents.WithLabelValues(event).Inc()
}

// RecordFrame 记录收发帧，direction 为 in/out，kind 为 text/binary
func (c *Collector) RecordFrame(direction, kind string) {
	if c == nil {
		return
	}
	c.socketFrames.WithLabelValues(direction, kind).Inc()
}

// RecordDroppedFrame 记录未能路由的帧
func (c *Collector) RecordDroppedFrame(reason string) {
	if c == nil {
		return
	}
	c.muxDropped.WithLabelValues(reason).Inc()
}

// =============================================================================
// 🎙️ 会话指标记录
// =============================================================================

// RecordSessionStart 记录会话开始
func (c *Collector) RecordSessionStart() {
	if c == nil {
		return
	}
	c.sessionsStarted.Inc()
	c.sessionsActive.Inc()
}

// RecordSessionEnd 记录会话终态与存活时长
func (c *Collector) RecordSessionEnd(state string, duration time.Duration) {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
	c.sessionsFinished.WithLabelValues(state).Inc()
	c.sessionDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordSamples 记录写入缓冲的采样数
func (c *Collector) RecordSamples(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.samplesEnqueued.Add(float64(n))
}

// RecordModelLatency 记录服务端报告的生成耗时
func (c *Collector) RecordModelLatency(d time.Duration) {
	if c == nil {
		return
	}
	c.modelLatency.Observe(d.Seconds())
}

// =============================================================================
// 🔊 播放指标记录
// =============================================================================

// RecordSegment 记录一次分段调度
func (c *Collector) RecordSegment() {
	if c == nil {
		return
	}
	c.segmentsScheduled.Inc()
}

// RecordUnderrun 记录一次读取等待
func (c *Collector) RecordUnderrun() {
	if c == nil {
		return
	}
	c.bufferUnderruns.Inc()
}

// SetBufferDuration 更新当前缓冲时长
func (c *Collector) SetBufferDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.bufferDuration.Set(d.Seconds())
}

// =============================================================================
// ⏱️ 延迟与识别指标记录
// =============================================================================

// RecordPing 记录一次往返测量
func (c *Collector) RecordPing(d time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.pingDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordSTTResult 记录识别结果
func (c *Collector) RecordSTTResult(resultType string) {
	if c == nil {
		return
	}
	c.sttResults.WithLabelValues(resultType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
