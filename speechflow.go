// Package speechflow 是语音服务客户端的顶层入口。
//
// 用法:
//
//	client, err := speechflow.New(speechflow.WithAPIKey("sk-..."))
//	ws := client.TTS().WebSocket()
//	if err := ws.Connect(ctx); err != nil { ... }
//	session, err := ws.Stream(ctx, tts.Request{ModelID: "sonic-english", Transcript: "hi", Voice: tts.VoiceByID("a0e9...")}, tts.StreamOptions{})
//
// Client 只负责把配置、鉴权、日志与指标接到各个子客户端上；
// 流式合成见 tts，识别见 stt，播放调度见 player，延迟自适应见 latency。
package speechflow

import (
	"context"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/config"
	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/internal/retry"
	"github.com/BaSui01/speechflow/latency"
	"github.com/BaSui01/speechflow/player"
	"github.com/BaSui01/speechflow/stt"
	"github.com/BaSui01/speechflow/transport"
	"github.com/BaSui01/speechflow/tts"
	"github.com/BaSui01/speechflow/types"
)

// EnvAPIKey 未显式提供 Key 时读取的环境变量
const EnvAPIKey = "CARTESIA_API_KEY"

// ErrMissingAPIKey 没有任何途径拿到 API Key
var ErrMissingAPIKey = types.NewError(types.ErrUsage, "missing API key")

// Option 配置 Client
type Option func(*options)

type options struct {
	cfg        *config.Config
	key        transport.KeySupplier
	baseURL    string
	version    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// WithConfig 使用完整配置（通常来自 config.Loader）
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithAPIKey 固定 API Key
func WithAPIKey(key string) Option {
	return func(o *options) { o.key = transport.StaticKey(key) }
}

// WithKeySupplier 每次请求动态获取 Key，用于凭据轮换
func WithKeySupplier(fn transport.KeySupplier) Option {
	return func(o *options) { o.key = fn }
}

// WithBaseURL 覆盖服务地址
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithVersion 覆盖协议版本
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithHTTPClient 替换底层 *http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics 注入指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// Client 顶层客户端
type Client struct {
	cfg     config.Config
	http    *transport.HTTPClient
	tts     *tts.Client
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New 创建客户端。
// Key 的来源依次为 WithKeySupplier/WithAPIKey、配置中的 client.api_key、环境变量 CARTESIA_API_KEY。
func New(opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := config.DefaultConfig()
	if o.cfg != nil {
		cp := *o.cfg
		cfg = &cp
	}
	if o.baseURL != "" {
		cfg.Client.BaseURL = o.baseURL
	}
	if o.version != "" {
		cfg.Client.Version = o.version
	}

	key := o.key
	if key == nil {
		k := cfg.Client.APIKey
		if k == "" {
			k = os.Getenv(EnvAPIKey)
		}
		if k == "" {
			return nil, ErrMissingAPIKey
		}
		key = transport.StaticKey(k)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpOpts := []transport.HTTPOption{
		transport.WithHTTPLogger(logger),
		transport.WithHTTPMetrics(o.metrics),
	}
	if o.httpClient != nil {
		httpOpts = append(httpOpts, transport.WithHTTPClient(o.httpClient))
	}
	httpClient, err := transport.NewHTTPClient(transport.HTTPConfig{
		BaseURL:        cfg.Client.BaseURL,
		Version:        cfg.Client.Version,
		APIKey:         key,
		Timeout:        cfg.Client.Timeout,
		RateLimitRPS:   cfg.Client.RateLimitRPS,
		RateLimitBurst: cfg.Client.RateLimitBurst,
	}, httpOpts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     *cfg,
		http:    httpClient,
		logger:  logger,
		metrics: o.metrics,
	}
	c.tts = tts.NewClient(httpClient, logger,
		tts.WithFormat(cfg.Stream.Format()),
		tts.WithMetrics(o.metrics),
		tts.WithSocketOptions(c.SocketOptions()...),
	)
	return c, nil
}

// Config 生效中的配置副本
func (c *Client) Config() config.Config { return c.cfg }

// HTTP REST 传输层
func (c *Client) HTTP() *transport.HTTPClient { return c.http }

// TTS 合成客户端
func (c *Client) TTS() *tts.Client { return c.tts }

// STT 创建一个识别 WebSocket，opts 的零值字段使用默认值。
func (c *Client) STT(opts stt.Options, options ...stt.Option) *stt.WebSocket {
	all := []stt.Option{
		stt.WithLogger(c.logger),
		stt.WithMetrics(c.metrics),
		stt.WithSocketOptions(c.SocketOptions()...),
	}
	return stt.NewWebSocket(c.http, opts, append(all, options...)...)
}

// SocketOptions 按 stream 配置生成的 WebSocket 选项（重连、保活、日志、指标）。
func (c *Client) SocketOptions() []transport.Option {
	opts := []transport.Option{
		transport.WithLogger(c.logger),
		transport.WithMetrics(c.metrics),
		transport.WithPingInterval(c.cfg.Stream.PingInterval),
	}
	rc := c.cfg.Stream.Reconnect
	if rc.Enabled {
		p := retry.DefaultPolicy()
		p.MaxRetries = rc.MaxRetries
		if rc.InitialDelay > 0 {
			p.InitialDelay = rc.InitialDelay
		}
		if rc.MaxDelay > 0 {
			p.MaxDelay = rc.MaxDelay
		}
		opts = append(opts, transport.WithReconnect(p))
	} else {
		opts = append(opts, transport.WithReconnect(nil))
	}
	return opts
}

// Latency 创建延迟控制器，测量目标是 base_url 加 latency.ping_path。
func (c *Client) Latency(opts ...latency.Option) *latency.Controller {
	lc := c.cfg.Latency
	all := []latency.Option{
		latency.WithLogger(c.logger),
		latency.WithMetrics(c.metrics),
	}
	if lc.Interval > 0 {
		all = append(all, latency.WithInterval(lc.Interval))
	}
	if lc.Timeout > 0 {
		all = append(all, latency.WithTimeout(lc.Timeout))
	}
	if c.cfg.Playback.BufferDuration > 0 {
		all = append(all, latency.WithDefault(c.cfg.Playback.BufferDuration))
	}
	return latency.NewController(c.http.HTTP(), c.http.URL(lc.PingPath), append(all, opts...)...)
}

// Player 按 playback 配置创建播放器。duration 为 nil 时使用固定的 buffer_duration。
func (c *Client) Player(duration player.DurationSource, opts ...player.Option) *player.Player {
	pc := c.cfg.Playback
	if duration == nil {
		d := pc.BufferDuration
		if d <= 0 {
			d = player.DefaultBufferDuration
		}
		duration = player.FixedDuration(d)
	}
	all := []player.Option{
		player.WithBufferDuration(duration),
		player.WithLogger(c.logger),
		player.WithMetrics(c.metrics),
	}
	if pc.Renderer == "file" {
		all = append(all, player.WithRenderer(player.FileRendererFactory(pc.OutputPath, c.logger)))
	}
	return player.New(append(all, opts...)...)
}

// Ping 测量一次到服务端的往返时间
func (c *Client) Ping(ctx context.Context) (latency.Update, error) {
	u := c.Latency().Measure(ctx)
	return u, u.Err
}
