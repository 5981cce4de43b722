// =============================================================================
// speechflow 命令行入口
// =============================================================================
// 流式合成并实时播放（或写入 WAV）、一次性合成、测量延迟
//
// 使用方法:
//
//	speechflow synthesize --voice <id> --text "Hello"           # 流式合成，虚拟渲染器播放
//	speechflow synthesize --voice <id> --text "Hi" --out a.wav  # 流式合成并写入 WAV
//	speechflow bytes --voice <id> --text "Hi" --out a.wav       # 一次性合成
//	speechflow ping                                             # 测量往返时延
//	speechflow version                                          # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/speechflow"
	"github.com/BaSui01/speechflow/config"
	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/internal/server"
	"github.com/BaSui01/speechflow/internal/telemetry"
	"github.com/BaSui01/speechflow/latency"
	"github.com/BaSui01/speechflow/player"
	"github.com/BaSui01/speechflow/tts"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "synthesize":
		err = runSynthesize(os.Args[2:])
	case "bytes":
		err = runBytes(os.Args[2:])
	case "ping":
		err = runPing(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// 🔧 公共启动流程
// =============================================================================

// app 子命令共享的运行时依赖
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	otel    *telemetry.Providers
	client  *speechflow.Client
}

func bootstrap(configPath string) (*app, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := initLogger(cfg.Log)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		otelProviders = &telemetry.Providers{}
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace, nil, logger)

	client, err := speechflow.New(
		speechflow.WithConfig(cfg),
		speechflow.WithLogger(logger),
		speechflow.WithMetrics(collector),
	)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, metrics: collector, otel: otelProviders, client: client}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// signalContext 收到 SIGINT/SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// =============================================================================
// 🔊 synthesize 命令
// =============================================================================

func runSynthesize(args []string) error {
	fs := flag.NewFlagSet("synthesize", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	text := fs.String("text", "", "Transcript to synthesize")
	voice := fs.String("voice", "", "Voice id (defaults to stream.voice_id)")
	model := fs.String("model", "", "Model id (defaults to stream.model_id)")
	out := fs.String("out", "", "Write audio to a WAV file instead of the virtual renderer")
	_ = fs.Parse(args)

	if *text == "" {
		return errors.New("--text is required")
	}

	a, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	req := a.request(*text, *voice, *model)
	if req.Voice.ID == "" {
		return errors.New("--voice or stream.voice_id is required")
	}

	ctx, stop := signalContext()
	defer stop()

	// 播放结束后取消 runCtx，让测延迟与指标服务一起退出。
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	duration := a.bufferSource()
	if a.cfg.Latency.Enabled {
		ctrl := a.client.Latency()
		ctrl.Updates().On(func(u latency.Update) {
			if u.Err == nil {
				a.logger.Info("buffer duration updated",
					zap.Duration("rtt", u.RTT),
					zap.Duration("buffer_duration", u.BufferDuration))
			}
		})
		duration = ctrl
		g.Go(func() error { return ignoreCanceled(ctrl.Run(gctx)) })
	}

	if a.cfg.Metrics.Enabled {
		cfg := server.DefaultConfig()
		cfg.Addr = a.cfg.Metrics.Addr
		m := server.NewManager(server.NewMetricsHandler(a.metrics.Gatherer()), cfg, a.logger)
		g.Go(func() error { return m.Run(gctx) })
	}

	var opts []player.Option
	if *out != "" {
		opts = append(opts, player.WithRenderer(player.FileRendererFactory(*out, a.logger)))
	}
	p := a.client.Player(duration, opts...)

	g.Go(func() error {
		defer cancelRun()
		return a.stream(gctx, p, req)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// bufferSource 配置的固定分段时长；未配置时返回 nil，由 Client.Player 使用默认值。
func (a *app) bufferSource() player.DurationSource {
	if a.cfg.Playback.BufferDuration <= 0 {
		return nil
	}
	return player.FixedDuration(a.cfg.Playback.BufferDuration)
}

func (a *app) request(text, voice, model string) tts.Request {
	if voice == "" {
		voice = a.cfg.Stream.VoiceID
	}
	if model == "" {
		model = a.cfg.Stream.ModelID
	}
	return tts.Request{
		ModelID:    model,
		Transcript: text,
		Voice:      tts.VoiceByID(voice),
		Language:   a.cfg.Stream.Language,
	}
}

func (a *app) stream(ctx context.Context, p *player.Player, req tts.Request) error {
	ws := a.client.TTS().WebSocket()
	if err := ws.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer ws.Disconnect()

	session, err := ws.Stream(ctx, req, tts.StreamOptions{Timeout: a.cfg.Stream.Timeout})
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	defer session.Stop()

	session.Errors().On(func(err error) {
		a.logger.Warn("server reported error", zap.Error(err))
	})
	p.Segments().On(func(seg player.Segment) {
		a.logger.Debug("segment scheduled",
			zap.Int("index", seg.Index),
			zap.Float64("start_at", seg.StartAt),
			zap.Int("samples", seg.Samples))
	})

	if err := p.Play(ctx, session.Source()); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	defer p.Stop(context.Background())

	state, err := session.Wait(ctx)
	a.logger.Info("synthesis finished",
		zap.String("context_id", session.ContextID()),
		zap.String("state", string(state)),
		zap.Duration("model_latency", session.ModelLatency()),
	)
	if state != tts.StateCompleted {
		return fmt.Errorf("session %s: %w", state, err)
	}
	return nil
}

// =============================================================================
// 📄 bytes 命令
// =============================================================================

func runBytes(args []string) error {
	fs := flag.NewFlagSet("bytes", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	text := fs.String("text", "", "Transcript to synthesize")
	voice := fs.String("voice", "", "Voice id (defaults to stream.voice_id)")
	model := fs.String("model", "", "Model id (defaults to stream.model_id)")
	out := fs.String("out", "speech.wav", "Output file")
	_ = fs.Parse(args)

	if *text == "" {
		return errors.New("--text is required")
	}

	a, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	req := a.request(*text, *voice, *model)
	if err := a.client.TTS().BytesToFile(ctx, tts.BytesRequest{
		ModelID:    req.ModelID,
		Transcript: req.Transcript,
		Voice:      req.Voice,
		Language:   req.Language,
	}, *out); err != nil {
		return err
	}
	fmt.Println(*out)
	return nil
}

// =============================================================================
// 📶 ping 命令
// =============================================================================

func runPing(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	count := fs.Int("count", 1, "Number of measurements")
	_ = fs.Parse(args)

	a, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	ctrl := a.client.Latency()
	for i := 0; i < *count; i++ {
		u := ctrl.Measure(ctx)
		if u.Err != nil {
			return u.Err
		}
		fmt.Printf("rtt=%s buffer=%s\n", u.RTT.Round(time.Millisecond), u.BufferDuration)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("speechflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`speechflow - streaming speech synthesis client

Usage:
  speechflow <command> [options]

Commands:
  synthesize  Stream synthesis and play it in real time
  bytes       Synthesize a whole utterance over REST
  ping        Measure round-trip latency and the derived buffer duration
  version     Show version information
  help        Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Options for 'synthesize' and 'bytes':
  --text <text>     Transcript (required)
  --voice <id>      Voice id
  --model <id>      Model id
  --out <path>      Output WAV file

Environment:
  CARTESIA_API_KEY       API key when client.api_key is not set
  SPEECHFLOW_*           Overrides for any config field

Examples:
  speechflow synthesize --voice a0e99841 --text "Hello there"
  speechflow bytes --voice a0e99841 --text "Hello" --out hello.wav
  speechflow ping --count 3
  speechflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
