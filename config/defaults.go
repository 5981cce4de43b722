// =============================================================================
// 📦 speechflow 默认配置
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/speechflow/audio"
)

// 服务端默认值
const (
	DefaultBaseURL = "https://api.cartesia.ai"
	DefaultVersion = "2024-06-10"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Client:    DefaultClientConfig(),
		Stream:    DefaultStreamConfig(),
		Playback:  DefaultPlaybackConfig(),
		Latency:   DefaultLatencyConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultClientConfig 返回默认客户端配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        DefaultBaseURL,
		Version:        DefaultVersion,
		Timeout:        30 * time.Second,
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}

// DefaultStreamConfig 返回默认流式配置
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ModelID:      "sonic-english",
		Language:     "en",
		Container:    string(audio.DefaultContainer),
		Encoding:     string(audio.DefaultEncoding),
		SampleRate:   audio.DefaultSampleRate,
		Timeout:      0,
		PingInterval: 0,
		Reconnect: ReconnectConfig{
			Enabled:      true,
			MaxRetries:   5,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
		},
	}
}

// DefaultPlaybackConfig 返回默认播放配置
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		Renderer:       "virtual",
		BufferDuration: 10 * time.Millisecond,
	}
}

// DefaultLatencyConfig 返回默认延迟自适应配置
func DefaultLatencyConfig() LatencyConfig {
	return LatencyConfig{
		Enabled:  true,
		Interval: 5 * time.Second,
		PingPath: "/",
		Timeout:  10 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "speechflow",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "speechflow",
	}
}
