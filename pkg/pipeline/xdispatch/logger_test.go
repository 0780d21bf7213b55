package xdispatch

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xlogpipe/pkg/context/xctx"
	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/observability/xmetrics"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xhandler"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xsink"
)

// lockedBuffer 诊断输出可能来自 drain goroutine 与 Close 调用方
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newDiag(t *testing.T) (xlog.Logger, *lockedBuffer) {
	t.Helper()
	out := &lockedBuffer{}
	logger, cleanup, err := xlog.New().SetOutput(out).SetFormat("json").Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	return logger, out
}

// collector 记录收到的条目
type collector struct {
	mu      sync.Mutex
	entries []*xentry.Entry
}

func (c *collector) sink(name string) *xsink.Func {
	return &xsink.Func{
		SinkName: name,
		WriteFn: func(_ context.Context, e *xentry.Entry) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.entries = append(c.entries, e)
			return nil
		},
	}
}

func (c *collector) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Message)
	}
	return out
}

func (c *collector) all() []*xentry.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*xentry.Entry(nil), c.entries...)
}

func newLogger(t *testing.T, cfg Config, opts ...Option) *Logger {
	t.Helper()
	diag, _ := newDiag(t)
	l, err := New(cfg, append([]Option{WithDiagnostics(diag)}, opts...)...)
	require.NoError(t, err)
	return l
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Sinks: []xsink.Sink{nil}})
	assert.ErrorIs(t, err, ErrNilSink)

	_, err = New(Config{Handlers: []xhandler.Handler{nil}})
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = New(Config{}, WithFlushSchedule("not a schedule"))
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestLogger_MinimumLevel(t *testing.T) {
	ctx := context.Background()
	c := &collector{}
	l := newLogger(t, Config{MinimumLevel: xlevel.Warning, Sinks: []xsink.Sink{c.sink("mem")}})

	l.Trace(ctx, "t")
	l.Debug(ctx, "d")
	l.Info(ctx, "i")
	l.Warning(ctx, "w")
	l.Error(ctx, "e")
	l.Fatal(ctx, "f")
	require.NoError(t, l.Close(ctx))

	assert.Equal(t, []string{"w", "e", "f"}, c.messages())
	st := l.Stats()
	assert.Equal(t, uint64(3), st.Enqueued)
	assert.Equal(t, uint64(3), st.Filtered)
	assert.Equal(t, uint64(3), st.Processed)
	assert.Zero(t, st.Pending)
}

func TestLogger_NoMinimumLevel(t *testing.T) {
	ctx := context.Background()
	c := &collector{}
	l := newLogger(t, Config{Sinks: []xsink.Sink{c.sink("mem")}})

	custom := xlevel.MustCustom(350, "Audit")
	assert.True(t, l.Enabled(xlevel.Trace))
	l.Trace(ctx, "t")
	l.Log(ctx, custom, "audit")
	require.NoError(t, l.Close(ctx))

	assert.Equal(t, []string{"t", "audit"}, c.messages())
}

func TestLogger_EntryFields(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	c := &collector{}
	l := newLogger(t, Config{DefaultCategory: "app", Sinks: []xsink.Sink{c.sink("mem")}}, WithClock(func() time.Time { return fixed }))

	boom := errors.New("boom")
	props := map[string]any{"user": "u1"}
	l.Info(ctx, "默认类别")
	l.Error(ctx, "自定义", WithCategory("db"), WithError(boom), WithProperties(props), WithProperty("attempt", 2))
	props["user"] = "changed"
	require.NoError(t, l.Close(ctx))

	got := c.all()
	require.Len(t, got, 2)
	assert.Equal(t, fixed, got[0].Timestamp)
	assert.Equal(t, "app", got[0].Category)
	assert.True(t, got[0].Level.Equal(xlevel.Info))
	assert.Nil(t, got[0].Properties)

	assert.Equal(t, "db", got[1].Category)
	assert.ErrorIs(t, got[1].Err, boom)
	assert.Equal(t, map[string]any{"user": "u1", "attempt": 2}, got[1].Properties)
}

func TestLogger_EnrichFromContext(t *testing.T) {
	c := &collector{}
	l := newLogger(t, Config{Sinks: []xsink.Sink{c.sink("mem")}})

	ctx, err := xctx.WithTraceID(context.Background(), "0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	ctx, err = xctx.WithProperty(ctx, "tenant", "t1")
	require.NoError(t, err)
	ctx, err = xctx.WithProperty(ctx, "region", "ctx")
	require.NoError(t, err)

	l.Info(ctx, "enriched", WithProperty("region", "entry"))
	l.Info(nil, "nil ctx") //nolint:staticcheck // nil ctx 也要接受
	require.NoError(t, l.Close(context.Background()))

	got := c.all()
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].Properties["tenant"])
	assert.Equal(t, "entry", got[0].Properties["region"], "条目自带属性优先")
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", got[0].Properties[xctx.KeyTraceID])
	assert.Nil(t, got[1].Properties)
}

func TestLogger_FIFOPerProducer(t *testing.T) {
	ctx := context.Background()
	c := &collector{}
	l := newLogger(t, Config{Sinks: []xsink.Sink{c.sink("mem")}})

	want := make([]string, 0, 500)
	for i := range 500 {
		msg := "m" + strconv.Itoa(i)
		want = append(want, msg)
		l.Info(ctx, msg)
	}
	require.NoError(t, l.Close(ctx))
	assert.Equal(t, want, c.messages())
}

func TestLogger_ConcurrentProducers(t *testing.T) {
	ctx := context.Background()
	c := &collector{}
	l := newLogger(t, Config{Sinks: []xsink.Sink{c.sink("mem")}})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				l.Info(ctx, "x")
			}
		}()
	}
	wg.Wait()
	require.NoError(t, l.Close(ctx))

	assert.Len(t, c.messages(), 1600)
	assert.Equal(t, uint64(1600), l.Stats().Enqueued)
}

func TestLogger_SinkIsolation(t *testing.T) {
	ctx := context.Background()
	diag, out := newDiag(t)
	good := &collector{}
	bad := &xsink.Func{
		SinkName: "bad",
		WriteFn: func(context.Context, *xentry.Entry) error {
			return errors.New("disk full")
		},
	}
	l, err := New(Config{Sinks: []xsink.Sink{bad, good.sink("good")}}, WithDiagnostics(diag), WithName("orders"))
	require.NoError(t, err)

	l.Info(ctx, "a")
	l.Info(ctx, "b")
	require.NoError(t, l.Close(ctx))

	assert.Equal(t, []string{"a", "b"}, good.messages())
	assert.Equal(t, uint64(2), l.Stats().SinkErrors)
	assert.Contains(t, out.String(), "sink write failed")
	assert.Contains(t, out.String(), `"sink":"bad"`)
	assert.Contains(t, out.String(), `"logger":"orders"`)
	assert.Contains(t, out.String(), "disk full")
}

func TestLogger_PanicRecovered(t *testing.T) {
	ctx := context.Background()
	diag, out := newDiag(t)
	good := &collector{}
	panicky := &xsink.Func{
		SinkName: "panicky",
		WriteFn: func(context.Context, *xentry.Entry) error {
			panic("sink exploded")
		},
	}
	h, err := xhandler.NewAction("panicky-handler", func(context.Context, *xentry.Entry) error {
		panic(errors.New("handler exploded"))
	}, nil)
	require.NoError(t, err)

	l, err := New(Config{
		Sinks:    []xsink.Sink{panicky, good.sink("good")},
		Handlers: []xhandler.Handler{h},
	}, WithDiagnostics(diag))
	require.NoError(t, err)

	l.Error(ctx, "first")
	l.Error(ctx, "second")
	require.NoError(t, l.Close(ctx))

	assert.Equal(t, []string{"first", "second"}, good.messages(), "panic 不影响后续 sink 与后续条目")
	st := l.Stats()
	assert.Equal(t, uint64(2), st.SinkErrors)
	assert.Equal(t, uint64(2), st.HandlerErrors)
	assert.Equal(t, uint64(4), st.Panics)
	assert.Contains(t, out.String(), "sink exploded")
	assert.Contains(t, out.String(), "handler exploded")
	assert.Contains(t, out.String(), `"stack"`)
}

func TestIsolate(t *testing.T) {
	cause := errors.New("cause")
	err := isolate(func() error { panic(cause) })
	assert.ErrorIs(t, err, ErrPanic)
	assert.ErrorIs(t, err, cause)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.NotEmpty(t, pe.Stack)

	err = isolate(func() error { panic(42) })
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "42")

	assert.NoError(t, isolate(func() error { return nil }))
}

func TestLogger_Handlers(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var alerts, thresholded []string

	alert, err := xhandler.NewAction("alert", func(_ context.Context, e *xentry.Entry) error {
		mu.Lock()
		defer mu.Unlock()
		alerts = append(alerts, e.Message)
		return nil
	}, func(e *xentry.Entry) bool { return e.Category == "payments" })
	require.NoError(t, err)

	inner, err := xhandler.NewAction("inner", func(_ context.Context, e *xentry.Entry) error {
		mu.Lock()
		defer mu.Unlock()
		thresholded = append(thresholded, e.Message)
		return errors.New("notify failed")
	}, nil)
	require.NoError(t, err)
	threshold, err := xhandler.NewThreshold(xlevel.Error, inner)
	require.NoError(t, err)

	l := newLogger(t, Config{Handlers: []xhandler.Handler{alert, threshold}})
	l.Info(ctx, "p-info", WithCategory("payments"))
	l.Error(ctx, "o-error", WithCategory("orders"))
	l.Fatal(ctx, "p-fatal", WithCategory("payments"))
	require.NoError(t, l.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"p-info", "p-fatal"}, alerts)
	assert.Equal(t, []string{"o-error", "p-fatal"}, thresholded)
	assert.Equal(t, uint64(2), l.Stats().HandlerErrors)
}

func TestLogger_Flush(t *testing.T) {
	ctx := context.Background()
	var flushed atomic.Int32
	ok := &xsink.Func{
		SinkName: "ok",
		WriteFn:  func(context.Context, *xentry.Entry) error { return nil },
		FlushFn: func(context.Context) error {
			flushed.Add(1)
			return nil
		},
	}
	failing := &xsink.Func{
		SinkName: "failing",
		WriteFn:  func(context.Context, *xentry.Entry) error { return nil },
		FlushFn:  func(context.Context) error { return errors.New("flush failed") },
	}
	l := newLogger(t, Config{Sinks: []xsink.Sink{failing, ok}})
	defer func() { _ = l.Close(ctx) }()

	err := l.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, int32(1), flushed.Load(), "前一个 sink 失败不影响后续 Flush")
}

func TestLogger_Close(t *testing.T) {
	ctx := context.Background()
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}
	mk := func(name string, closeErr error) *xsink.Func {
		return &xsink.Func{
			SinkName: name,
			WriteFn:  func(context.Context, *xentry.Entry) error { record("write:" + name); return nil },
			FlushFn:  func(context.Context) error { record("flush:" + name); return nil },
			CloseFn:  func(context.Context) error { record("close:" + name); return closeErr },
		}
	}
	l := newLogger(t, Config{Sinks: []xsink.Sink{mk("a", errors.New("close a")), mk("b", nil)}})
	assert.Equal(t, StateRunning, l.State())

	l.Info(ctx, "m")
	err := l.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close a")
	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, []string{"write:a", "write:b", "flush:a", "close:a", "flush:b", "close:b"}, order)

	// 重复关闭
	assert.NoError(t, l.Close(ctx))
	assert.Len(t, order, 6)
}

func TestLogger_DropAfterClose(t *testing.T) {
	ctx := context.Background()
	c := &collector{}
	l := newLogger(t, Config{Sinks: []xsink.Sink{c.sink("mem")}})
	require.NoError(t, l.Close(ctx))

	l.Info(ctx, "late")
	l.LogWithProperties(ctx, xlevel.Error, "late too", map[string]any{"k": "v"})
	assert.Empty(t, c.messages())
	assert.Equal(t, uint64(2), l.Stats().Dropped)
}

func TestLogger_CloseTimeout(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	var once sync.Once
	blocking := &xsink.Func{
		SinkName: "blocking",
		WriteFn: func(ctx context.Context, _ *xentry.Entry) error {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return ctx.Err()
		},
	}
	l := newLogger(t, Config{Sinks: []xsink.Sink{blocking}}, WithCloseTimeout(50*time.Millisecond))

	l.Info(ctx, "stuck")
	l.Info(ctx, "queued")
	<-started

	begin := time.Now()
	err := l.Close(ctx)
	assert.ErrorIs(t, err, ErrCloseTimeout)
	assert.Less(t, time.Since(begin), 2*time.Second)
	assert.Equal(t, StateStopped, l.State())

	// drain goroutine 在 ctx 取消后退出，由 goleak 验证
	<-l.done
}

func TestLogger_CloseContextCanceled(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	blocking := &xsink.Func{
		SinkName: "blocking",
		WriteFn: func(context.Context, *xentry.Entry) error {
			close(started)
			<-release
			return nil
		},
	}
	l := newLogger(t, Config{Sinks: []xsink.Sink{blocking}}, WithCloseTimeout(time.Minute))
	l.Info(context.Background(), "stuck")
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Close(ctx)
	assert.ErrorIs(t, err, ErrCloseTimeout)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-l.done
}

func TestLogger_FlushSchedule(t *testing.T) {
	var flushed atomic.Int32
	s := &xsink.Func{
		SinkName: "scheduled",
		WriteFn:  func(context.Context, *xentry.Entry) error { return nil },
		FlushFn: func(context.Context) error {
			flushed.Add(1)
			return nil
		},
	}
	l := newLogger(t, Config{Sinks: []xsink.Sink{s}}, WithFlushSchedule("@every 1s"))

	assert.Eventually(t, func() bool { return flushed.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, l.Close(context.Background()))
}

func TestLogger_Observer(t *testing.T) {
	ctx := context.Background()
	rec := &spanRecorder{}
	bad := &xsink.Func{
		SinkName: "bad",
		WriteFn:  func(context.Context, *xentry.Entry) error { return errors.New("nope") },
	}
	l := newLogger(t, Config{Sinks: []xsink.Sink{bad}}, WithObserver(rec), WithName("obs"))

	l.Info(ctx, "a")
	require.NoError(t, l.Close(ctx))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.started)
	assert.Equal(t, "xdispatch", rec.started[0].Component)
	assert.Equal(t, "drain", rec.started[0].Operation)
	assert.Contains(t, rec.started[0].Attrs, xmetrics.String(xmetrics.AttrLogger, "obs"))
	require.NotEmpty(t, rec.results)
	assert.Equal(t, xmetrics.StatusError, rec.results[0].Status)
}

type spanRecorder struct {
	mu      sync.Mutex
	started []xmetrics.SpanOptions
	results []xmetrics.Result
}

func (r *spanRecorder) Start(ctx context.Context, opts xmetrics.SpanOptions) (context.Context, xmetrics.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, opts)
	return ctx, recordedSpan{r}
}

type recordedSpan struct{ r *spanRecorder }

func (s recordedSpan) End(res xmetrics.Result) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.results = append(s.r.results, res)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "State(9)", State(9).String())
}
