// =============================================================================
// 📦 speechflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("speechflow.yaml").
//	    WithEnvPrefix("SPEECHFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/speechflow/audio"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "SPEECHFLOW"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 speechflow 的完整配置结构
type Config struct {
	// Client 服务端连接与鉴权
	Client ClientConfig `yaml:"client" env:"CLIENT"`

	// Stream 流式合成参数
	Stream StreamConfig `yaml:"stream" env:"STREAM"`

	// Playback 播放调度
	Playback PlaybackConfig `yaml:"playback" env:"PLAYBACK"`

	// Latency 延迟自适应缓冲
	Latency LatencyConfig `yaml:"latency" env:"LATENCY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// ClientConfig 客户端配置
type ClientConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 服务基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 协议版本，随请求头与 WebSocket 查询参数发送
	Version string `yaml:"version" env:"VERSION"`
	// REST 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// REST 请求限速（每秒）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限速突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// StreamConfig 流式合成配置
type StreamConfig struct {
	// 模型 ID
	ModelID string `yaml:"model_id" env:"MODEL_ID"`
	// 默认音色 ID
	VoiceID string `yaml:"voice_id" env:"VOICE_ID"`
	// 语言
	Language string `yaml:"language" env:"LANGUAGE"`
	// 容器: raw, wav, mp3
	Container string `yaml:"container" env:"CONTAINER"`
	// 编码: pcm_f32le, pcm_s16le, pcm_mulaw, pcm_alaw
	Encoding string `yaml:"encoding" env:"ENCODING"`
	// 采样率
	SampleRate int `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 片段间最长等待，0 表示不超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// WebSocket 保活 ping 间隔，0 表示关闭
	PingInterval time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	// 断线重连
	Reconnect ReconnectConfig `yaml:"reconnect" env:"RECONNECT"`
}

// ReconnectConfig 重连策略
type ReconnectConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 最大重试次数，-1 表示不限
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 初始延迟
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// 最大延迟
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

// PlaybackConfig 播放配置
type PlaybackConfig struct {
	// 渲染器: virtual, file
	Renderer string `yaml:"renderer" env:"RENDERER"`
	// file 渲染器输出路径
	OutputPath string `yaml:"output_path" env:"OUTPUT_PATH"`
	// 固定缓冲时长（未启用延迟自适应时使用）
	BufferDuration time.Duration `yaml:"buffer_duration" env:"BUFFER_DURATION"`
}

// LatencyConfig 延迟自适应配置
type LatencyConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 测量间隔
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// 测量请求路径（相对 base_url）
	PingPath string `yaml:"ping_path" env:"PING_PATH"`
	// 单次测量超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否暴露 /metrics
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 按字段类型解析字符串
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.Client.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "client.base_url must be an absolute URL")
	}
	if c.Client.Version == "" {
		errs = append(errs, "client.version is required")
	}
	if c.Client.RateLimitRPS < 0 {
		errs = append(errs, "client.rate_limit_rps must not be negative")
	}

	if err := c.Stream.Format().Validate(); err != nil {
		errs = append(errs, "stream: "+err.Error())
	}
	if c.Stream.Timeout < 0 {
		errs = append(errs, "stream.timeout must not be negative")
	}
	if c.Stream.Reconnect.MaxRetries < -1 {
		errs = append(errs, "stream.reconnect.max_retries must be >= -1")
	}

	switch c.Playback.Renderer {
	case "virtual":
	case "file":
		if c.Playback.OutputPath == "" {
			errs = append(errs, "playback.output_path is required for the file renderer")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown playback.renderer %q", c.Playback.Renderer))
	}
	if c.Playback.BufferDuration < 0 {
		errs = append(errs, "playback.buffer_duration must not be negative")
	}

	if c.Latency.Enabled && c.Latency.Interval <= 0 {
		errs = append(errs, "latency.interval must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log.level %q", c.Log.Level))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Format 组装输出格式描述，mp3 使用默认码率。
func (s StreamConfig) Format() audio.Format {
	f := audio.Format{
		Container:  audio.Container(s.Container),
		Encoding:   audio.Encoding(s.Encoding),
		SampleRate: s.SampleRate,
	}
	if f.Container == audio.ContainerMP3 {
		f.BitRate = audio.DefaultMP3BitRate
	}
	return f
}
