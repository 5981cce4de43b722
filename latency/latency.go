package latency

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 分档阈值
const (
	LowLatencyThreshold  = 300 * time.Millisecond
	HighLatencyThreshold = 1500 * time.Millisecond

	// MinBufferDuration 低时延档的缓冲时长，近似不缓冲
	MinBufferDuration = 10 * time.Millisecond
	// MaxBufferDuration 高时延档的缓冲时长
	MaxBufferDuration = 6 * time.Second
	// BufferMultiplier 中间档：缓冲时长 = 往返时延 × 4
	BufferMultiplier = 4
)

// BufferDurationFor 把往返时延映射为预缓冲时长。
func BufferDurationFor(rtt time.Duration) time.Duration {
	switch {
	case rtt < LowLatencyThreshold:
		return MinBufferDuration
	case rtt > HighLatencyThreshold:
		return MaxBufferDuration
	default:
		return rtt * BufferMultiplier
	}
}

// HTTPDoer 发送请求，*http.Client 满足该接口。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Ping 测量一次 GET 请求的往返耗时。任何 HTTP 响应都算作成功，
// 只有网络失败才返回错误。
func Ping(ctx context.Context, client HTTPDoer, url string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build ping request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), fmt.Errorf("ping %s: %w", url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return time.Since(start), nil
}
