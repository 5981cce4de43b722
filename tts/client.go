package tts

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/audio"
	"github.com/BaSui01/speechflow/transport"
)

// BytesPath 一次性合成端点
const BytesPath = "/tts/bytes"

// Client 合成服务入口：REST 一次性合成，以及创建流式 WebSocket。
type Client struct {
	http   *transport.HTTPClient
	logger *zap.Logger
	wsOpts []WebSocketOption
}

// NewClient 创建客户端。wsOpts 作为 WebSocket 的默认选项。
func NewClient(httpClient *transport.HTTPClient, logger *zap.Logger, wsOpts ...WebSocketOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:   httpClient,
		logger: logger.With(zap.String("component", "tts")),
		wsOpts: wsOpts,
	}
}

// WebSocket 创建新的流式客户端，opts 追加在默认选项之后。
func (c *Client) WebSocket(opts ...WebSocketOption) *WebSocket {
	all := append([]WebSocketOption{WithLogger(c.logger)}, c.wsOpts...)
	return NewWebSocket(c.http, append(all, opts...)...)
}

// Bytes 合成整段音频并返回原始字节。未指定 output_format 时使用 wav 容器。
func (c *Client) Bytes(ctx context.Context, req BytesRequest) ([]byte, error) {
	if req.OutputFormat == nil {
		f := audio.DefaultFormat()
		f.Container = audio.ContainerWAV
		req.OutputFormat = &f
	}
	if err := req.OutputFormat.Validate(); err != nil {
		return nil, err
	}
	data, err := c.http.Bytes(ctx, http.MethodPost, BytesPath, req)
	if err != nil {
		return nil, fmt.Errorf("tts bytes: %w", err)
	}
	c.logger.Debug("synthesized",
		zap.String("model_id", req.ModelID),
		zap.Int("chars", len(req.Transcript)),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

// BytesToFile 合成并写入文件。
func (c *Client) BytesToFile(ctx context.Context, req BytesRequest, path string) error {
	data, err := c.Bytes(ctx, req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
