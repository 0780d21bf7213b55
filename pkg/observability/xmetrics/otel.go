package xmetrics

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xlogpipe/pkg/context/xctx"
)

const (
	defaultScope = "github.com/omeyang/xlogpipe/pkg/observability/xmetrics"
	unknown      = "unknown"

	MetricOperations = "xlogpipe.pipeline.operations"
	MetricDuration   = "xlogpipe.pipeline.duration"
	MetricEntries    = "xlogpipe.pipeline.entries"
)

// DefaultDurationBuckets 耗时桶（秒），从单条控制台写入到一次远端批量提交
var DefaultDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

type otelConfig struct {
	scope   string
	tracer  trace.TracerProvider
	meter   metric.MeterProvider
	buckets []float64
}

// Option OTel Observer 选项
type Option func(*otelConfig)

// WithInstrumentationName 设置 tracer/meter 的 scope 名称
func WithInstrumentationName(name string) Option {
	return func(c *otelConfig) {
		if name != "" {
			c.scope = name
		}
	}
}

// WithTracerProvider 默认使用 otel 全局 provider
func WithTracerProvider(p trace.TracerProvider) Option {
	return func(c *otelConfig) {
		if p != nil {
			c.tracer = p
		}
	}
}

// WithMeterProvider 默认使用 otel 全局 provider
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(c *otelConfig) {
		if p != nil {
			c.meter = p
		}
	}
}

// WithDurationBuckets 耗时桶边界（秒），必须有限且严格递增
func WithDurationBuckets(buckets ...float64) Option {
	return func(c *otelConfig) { c.buckets = buckets }
}

func validBuckets(buckets []float64) bool {
	if len(buckets) == 0 {
		return false
	}
	for i, b := range buckets {
		if math.IsNaN(b) || math.IsInf(b, 0) || (i > 0 && b <= buckets[i-1]) {
			return false
		}
	}
	return true
}

type otelObserver struct {
	tracer     trace.Tracer
	operations metric.Int64Counter
	entries    metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewOTelObserver 创建基于 OpenTelemetry 的 Observer。
//
// 每个跨度产生一个 trace span，并记录：
//   - xlogpipe.pipeline.operations  按 component/operation/status 计数
//   - xlogpipe.pipeline.duration    耗时直方图（秒）
//   - xlogpipe.pipeline.entries     跨度携带的批次条目数
func NewOTelObserver(opts ...Option) (Observer, error) {
	cfg := otelConfig{
		scope:   defaultScope,
		tracer:  otel.GetTracerProvider(),
		meter:   otel.GetMeterProvider(),
		buckets: DefaultDurationBuckets,
	}
	for _, opt := range opts {
		if opt == nil {
			return nil, ErrNilOption
		}
		opt(&cfg)
	}
	if !validBuckets(cfg.buckets) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBuckets, cfg.buckets)
	}

	meter := cfg.meter.Meter(cfg.scope)
	o := &otelObserver{tracer: cfg.tracer.Tracer(cfg.scope)}

	var err error
	if o.operations, err = meter.Int64Counter(MetricOperations,
		metric.WithDescription("sink writes, batch submissions and drain passes"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstrument, MetricOperations, err)
	}
	if o.entries, err = meter.Int64Counter(MetricEntries,
		metric.WithDescription("log entries carried by pipeline operations"),
		metric.WithUnit("{entry}")); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstrument, MetricEntries, err)
	}
	if o.duration, err = meter.Float64Histogram(MetricDuration,
		metric.WithDescription("pipeline operation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cfg.buckets...)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstrument, MetricDuration, err)
	}
	return o, nil
}

func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = parentFromXctx(ctx)

	s := &otelSpan{
		observer:  o,
		component: orUnknown(opts.Component),
		operation: orUnknown(opts.Operation),
		entries:   batchSize(opts.Attrs),
		start:     time.Now(),
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("component", s.component),
		attribute.String("operation", s.operation),
	}, toOTel(opts.Attrs)...)

	ctx, s.span = o.tracer.Start(ctx, s.operation,
		trace.WithSpanKind(spanKind(opts.Kind)),
		trace.WithAttributes(attrs...))
	s.ctx = syncXctx(ctx, s.span.SpanContext())
	return s.ctx, s
}

type otelSpan struct {
	observer  *otelObserver
	span      trace.Span
	ctx       context.Context
	component string
	operation string
	entries   int64
	start     time.Time
	once      sync.Once
}

func (s *otelSpan) End(result Result) {
	s.once.Do(func() { s.end(result) })
}

func (s *otelSpan) end(result Result) {
	status := result.Status
	if status == "" {
		status = StatusOK
		if result.Err != nil {
			status = StatusError
		}
	}

	if result.Err != nil {
		s.span.RecordError(result.Err)
	}
	if status == StatusError {
		desc := "operation failed"
		if result.Err != nil {
			desc = result.Err.Error()
		}
		s.span.SetStatus(codes.Error, desc)
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	if len(result.Attrs) > 0 {
		s.span.SetAttributes(toOTel(result.Attrs)...)
	}
	s.span.End()

	// 调用方 ctx 可能已取消，指标照常记录
	ctx := context.WithoutCancel(s.ctx)
	set := metric.WithAttributes(
		attribute.String("component", s.component),
		attribute.String("operation", s.operation),
		attribute.String("status", string(status)),
	)
	s.observer.operations.Add(ctx, 1, set)
	s.observer.duration.Record(ctx, time.Since(s.start).Seconds(), set)
	if s.entries > 0 {
		s.observer.entries.Add(ctx, s.entries, set)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func batchSize(attrs []Attr) int64 {
	for _, a := range attrs {
		if a.Key != AttrBatchSize {
			continue
		}
		switch v := a.Value.(type) {
		case int:
			return int64(v)
		case int64:
			return v
		}
	}
	return 0
}

func spanKind(k Kind) trace.SpanKind {
	switch k {
	case KindClient:
		return trace.SpanKindClient
	case KindProducer:
		return trace.SpanKindProducer
	default:
		return trace.SpanKindInternal
	}
}

func toOTel(attrs []Attr) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		if a.Key == "" || a.Value == nil {
			continue
		}
		out = append(out, keyValue(a))
	}
	return out
}

func keyValue(a Attr) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case uint64:
		if v <= math.MaxInt64 {
			return attribute.Int64(a.Key, int64(v))
		}
	case float64:
		return attribute.Float64(a.Key, v)
	case time.Duration:
		return attribute.Int64(a.Key, v.Milliseconds())
	}
	return attribute.String(a.Key, fmt.Sprint(a.Value))
}

// parentFromXctx ctx 中没有 OTel span 时，用 xctx 的追踪标识构造远端父 span
func parentFromXctx(ctx context.Context) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	traceID, err := trace.TraceIDFromHex(xctx.TraceID(ctx))
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(xctx.SpanID(ctx))
	if err != nil {
		return ctx
	}
	var flags trace.TraceFlags
	if v, err := strconv.ParseUint(xctx.TraceFlags(ctx), 16, 8); err == nil {
		flags = trace.TraceFlags(v)
	}
	return trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}))
}

// syncXctx 把新 span 的标识写回 xctx，下游 sink 通过 xctx 读取
func syncXctx(ctx context.Context, sc trace.SpanContext) context.Context {
	if !sc.IsValid() {
		return ctx
	}
	if next, err := xctx.WithTraceID(ctx, sc.TraceID().String()); err == nil {
		ctx = next
	}
	if next, err := xctx.WithSpanID(ctx, sc.SpanID().String()); err == nil {
		ctx = next
	}
	if next, err := xctx.WithTraceFlags(ctx, sc.TraceFlags().String()); err == nil {
		ctx = next
	}
	return ctx
}
