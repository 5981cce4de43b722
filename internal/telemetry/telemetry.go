// =============================================================================
// speechflow 遥测初始化
// =============================================================================
// 封装 OTel SDK 的 trace 与 metric 配置。未启用时不创建任何 exporter，
// 全局 provider 保持 noop，流式会话打开的 span 没有额外开销。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/config"
)

// InstrumentationName 库内 tracer 名称
const InstrumentationName = "github.com/BaSui01/speechflow"

// 流式会话 span 名称与属性
const (
	SpanStream = "tts.stream"

	AttrContextID  = attribute.Key("tts.context_id")
	AttrModelID    = attribute.Key("tts.model_id")
	AttrFinalState = attribute.Key("tts.final_state")
	AttrEncoding   = attribute.Key("audio.encoding")
	AttrSampleRate = attribute.Key("audio.sample_rate")
)

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider，未启用时均为 nil。
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 初始化 OTel SDK。cfg.Enabled 为 false 时返回 noop Providers，不连接外部服务。
func Init(cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Debug("telemetry disabled")
		return &Providers{}, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return &Providers{tp: tp, mp: mp}, nil
}

// Tracer 取全局 provider 上的库 tracer
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName, trace.WithInstrumentationVersion(buildVersion()))
}

// StartStreamSpan 为一次流式合成打开客户端 span。
func StartStreamSpan(ctx context.Context, contextID, modelID, encoding string, sampleRate int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, SpanStream,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrContextID.String(contextID),
			AttrModelID.String(modelID),
			AttrEncoding.String(encoding),
			AttrSampleRate.Int(sampleRate),
		),
	)
}

// EndStreamSpan 记录终态后结束 span。failed 为 true 时 cause 记为错误。
func EndStreamSpan(span trace.Span, finalState string, cause error, failed bool) {
	if span == nil {
		return
	}
	span.SetAttributes(AttrFinalState.String(finalState))
	if failed && cause != nil {
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
	}
	span.End()
}

// Shutdown 刷新未导出的数据并关闭 exporter，noop 或 nil 时直接返回。
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
