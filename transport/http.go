package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/internal/tlsutil"
	"github.com/BaSui01/speechflow/types"
)

// 请求头
const (
	HeaderAPIKey  = "X-API-Key"
	HeaderVersion = "Cartesia-Version"
)

// KeySupplier 在每次请求时提供 API Key，便于轮换凭据。
type KeySupplier func(ctx context.Context) (string, error)

// StaticKey 返回固定 Key。
func StaticKey(key string) KeySupplier {
	return func(context.Context) (string, error) { return key, nil }
}

// HTTPConfig REST 客户端配置
type HTTPConfig struct {
	BaseURL        string
	Version        string
	APIKey         KeySupplier
	Timeout        time.Duration
	RateLimitRPS   float64 // 0 表示不限速
	RateLimitBurst int
}

// HTTPClient 带鉴权、版本头与限速的 REST 客户端。
type HTTPClient struct {
	base    *url.URL
	version string
	apiKey  KeySupplier
	client  *http.Client
	limiter *rate.Limiter
	metrics *metrics.Collector
	logger  *zap.Logger
}

// HTTPOption 配置 HTTPClient
type HTTPOption func(*HTTPClient)

// WithHTTPClient 替换底层 *http.Client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.client = c }
}

// WithHTTPLogger 设置日志
func WithHTTPLogger(logger *zap.Logger) HTTPOption {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHTTPMetrics 注入指标收集器
func WithHTTPMetrics(c *metrics.Collector) HTTPOption {
	return func(h *HTTPClient) { h.metrics = c }
}

// NewHTTPClient 创建 REST 客户端
func NewHTTPClient(cfg HTTPConfig, opts ...HTTPOption) (*HTTPClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, types.NewError(types.ErrUsage, "base url must be absolute").WithCause(err)
	}
	if cfg.APIKey == nil {
		cfg.APIKey = StaticKey("")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	h := &HTTPClient{
		base:    base,
		version: cfg.Version,
		apiKey:  cfg.APIKey,
		client:  tlsutil.SecureHTTPClient(timeout),
		logger:  zap.NewNop(),
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("component", "http_client"))
	return h, nil
}

// BaseURL 服务基础地址
func (h *HTTPClient) BaseURL() string { return h.base.String() }

// Version 协议版本
func (h *HTTPClient) Version() string { return h.version }

// APIKey 取当前 Key
func (h *HTTPClient) APIKey(ctx context.Context) (string, error) { return h.apiKey(ctx) }

// URL 拼接相对路径
func (h *HTTPClient) URL(path string) string {
	u := *h.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String()
}

// Do 发送请求。body 非 nil 时以 JSON 编码。非 2xx 响应会被读取并转换为
// types.ErrUpstream 错误；成功时调用方负责关闭响应体。
func (h *HTTPClient) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	key, err := h.apiKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve api key: %w", err)
	}
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	if h.version != "" {
		req.Header.Set(HeaderVersion, h.version)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.metrics.RecordHTTPRequest(method, path, 0, time.Since(start))
		return nil, types.NewError(types.ErrConnection, "request failed").
			WithCause(err).
			WithRetryable(true)
	}
	h.metrics.RecordHTTPRequest(method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		h.logger.Debug("upstream error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, types.NewError(types.ErrUpstream, fmt.Sprintf("%s %s: %s", method, path, resp.Status)).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500).
			WithCause(fmt.Errorf("%s", strings.TrimSpace(string(snippet))))
	}
	return resp, nil
}

// JSON 发送 JSON 请求并把响应解码到 out（可为 nil）。
func (h *HTTPClient) JSON(ctx context.Context, method, path string, in, out any) error {
	resp, err := h.Do(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrProtocol, "decode response").WithCause(err)
	}
	return nil
}

// Bytes 发送请求并返回完整响应体。
func (h *HTTPClient) Bytes(ctx context.Context, method, path string, in any) ([]byte, error) {
	resp, err := h.Do(ctx, method, path, in)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "read response").WithCause(err)
	}
	return data, nil
}

// HTTP 返回底层客户端，延迟测量使用同一连接池。
func (h *HTTPClient) HTTP() *http.Client { return h.client }
