package xmetrics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/omeyang/xlogpipe/pkg/context/xctx"
)

func newProviders(t *testing.T) (*tracetest.InMemoryExporter, *sdkmetric.ManualReader, Observer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	obs, err := NewOTelObserver(WithTracerProvider(tp), WithMeterProvider(mp), WithInstrumentationName("test"))
	require.NoError(t, err)
	return exporter, reader, obs
}

func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				return sum
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return metricdata.Sum[int64]{}
}

func TestNewOTelObserver_Options(t *testing.T) {
	_, err := NewOTelObserver(nil)
	assert.ErrorIs(t, err, ErrNilOption)

	_, err = NewOTelObserver(WithDurationBuckets(1, 0.5))
	assert.ErrorIs(t, err, ErrInvalidBuckets)

	_, err = NewOTelObserver(WithDurationBuckets(math.NaN()))
	assert.ErrorIs(t, err, ErrInvalidBuckets)

	obs, err := NewOTelObserver(WithDurationBuckets(0.1, 1), WithTracerProvider(nil), WithMeterProvider(nil))
	require.NoError(t, err)
	assert.NotNil(t, obs)
}

func TestOTelObserver_SpanAndMetrics(t *testing.T) {
	exporter, reader, obs := newProviders(t)

	_, span := Start(context.Background(), obs, SpanOptions{
		Component: "xbatch",
		Operation: "flush",
		Kind:      KindProducer,
		Attrs:     []Attr{Int(AttrBatchSize, 10), String(AttrSink, "db"), {Key: "", Value: 1}},
	})
	span.End(Result{Err: errors.New("tx failed"), Attrs: []Attr{Duration("wait", time.Millisecond)}})
	span.End(Result{}) // 幂等

	_, ok := Start(context.Background(), obs, SpanOptions{Component: "xsink"})
	ok.End(Result{})

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "flush", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, attribute.Int(AttrBatchSize, 10))
	assert.Equal(t, unknown, spans[1].Name)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	total := func(name string) int64 {
		var n int64
		for _, dp := range findSum(t, rm, name).DataPoints {
			n += dp.Value
		}
		return n
	}
	assert.EqualValues(t, 2, total(MetricOperations))
	assert.EqualValues(t, 10, total(MetricEntries), "只有带 batch.size 的跨度计入条目数")
}

func TestOTelObserver_ParentFromXctx(t *testing.T) {
	exporter, _, obs := newProviders(t)

	ctx, err := xctx.WithTraceID(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	ctx, err = xctx.WithSpanID(ctx, "00f067aa0ba902b7")
	require.NoError(t, err)
	ctx, err = xctx.WithTraceFlags(ctx, "01")
	require.NoError(t, err)

	spanCtx, span := Start(ctx, obs, SpanOptions{Component: "xhttpsink", Operation: "post", Kind: KindClient})
	span.End(Result{Status: StatusOK})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
	assert.Equal(t, spans[0].SpanContext.SpanID().String(), xctx.SpanID(spanCtx))
}

func TestStart_Noop(t *testing.T) {
	//nolint:staticcheck // 验证 nil ctx 兜底
	ctx, span := Start(nil, nil, SpanOptions{})
	assert.NotNil(t, ctx)
	assert.IsType(t, NoopSpan{}, span)
	span.End(Result{})

	ctx, span = NoopObserver{}.Start(nil, SpanOptions{}) //nolint:staticcheck
	assert.NotNil(t, ctx)
	span.End(Result{})
}

func TestKindAndAttrs(t *testing.T) {
	assert.Equal(t, "Producer", KindProducer.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())

	kv := keyValue(Uint64("u", math.MaxUint64))
	assert.Equal(t, attribute.STRING, kv.Value.Type())
	assert.Equal(t, attribute.BOOL, keyValue(Bool("b", true)).Value.Type())
	assert.Equal(t, attribute.FLOAT64, keyValue(Float64("f", 1.5)).Value.Type())
	assert.Equal(t, attribute.INT64, keyValue(Int64("i", 1)).Value.Type())
	assert.Equal(t, attribute.STRING, keyValue(Any("a", struct{}{})).Value.Type())
}
