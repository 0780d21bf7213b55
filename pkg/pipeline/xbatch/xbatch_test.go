package xbatch

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/observability/xmetrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSender 记录每个批次，fail 返回非 nil 时该次发送失败
type recordingSender struct {
	mu      sync.Mutex
	batches [][]string
	calls   int
	fail    func(call int) error
	closed  int
}

func (r *recordingSender) Send(_ context.Context, batch []*xentry.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail != nil {
		if err := r.fail(r.calls); err != nil {
			return err
		}
	}
	msgs := make([]string, len(batch))
	for i, e := range batch {
		msgs[i] = e.Message
	}
	r.batches = append(r.batches, msgs)
	return nil
}

func (r *recordingSender) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *recordingSender) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.batches))
	for i, b := range r.batches {
		out[i] = len(b)
	}
	return out
}

func entry(msg string) *xentry.Entry {
	return xentry.New(xlevel.Info, "test", msg, nil)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("x", nil)
	assert.ErrorIs(t, err, ErrNilSender)

	_, err = New("x", &recordingSender{}, WithBatchSize(0))
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestSink_BatchesOnSize(t *testing.T) {
	ctx := context.Background()
	rs := &recordingSender{}
	s, err := New("rec", rs, WithBatchSize(100))
	require.NoError(t, err)
	assert.Equal(t, "rec", s.Name())

	for range 250 {
		require.NoError(t, s.Write(ctx, entry("m")))
	}
	assert.Equal(t, []int{100, 100}, rs.sizes())
	assert.Equal(t, 50, s.Stats().Buffered)

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, []int{100, 100, 50}, rs.sizes())
	assert.Equal(t, 1, rs.closed)

	st := s.Stats()
	assert.Equal(t, uint64(3), st.BatchesSent)
	assert.Equal(t, uint64(250), st.EntriesSent)
	assert.Zero(t, st.EntriesDropped)
	assert.Empty(t, st.BreakerState)
}

// 第三个批次失败只丢失这 50 条
func TestSink_FailedBatchDropped(t *testing.T) {
	ctx := context.Background()
	down := errors.New("db down")
	rs := &recordingSender{fail: func(call int) error {
		if call == 3 {
			return down
		}
		return nil
	}}

	var diag bytes.Buffer
	logger, cleanup, err := xlog.New().SetOutput(&diag).SetFormat("json").Build()
	require.NoError(t, err)
	defer func() { _ = cleanup() }()

	s, err := New("db", rs, WithLogger(logger))
	require.NoError(t, err)

	for range 250 {
		require.NoError(t, s.Write(ctx, entry("m")))
	}
	err = s.Close(ctx)
	assert.ErrorIs(t, err, down)

	assert.Equal(t, []int{100, 100}, rs.sizes())
	st := s.Stats()
	assert.Equal(t, uint64(2), st.BatchesSent)
	assert.Equal(t, uint64(1), st.BatchesFailed)
	assert.Equal(t, uint64(50), st.EntriesDropped)
	assert.Zero(t, st.Buffered, "失败的批次不回到缓冲")
	assert.Contains(t, diag.String(), "batch dropped")

	// 之后再 Flush 不会重发
	require.NoError(t, s.Flush(ctx))
	assert.Len(t, rs.sizes(), 2)
}

func TestSink_Ownership(t *testing.T) {
	ctx := context.Background()
	rs := &recordingSender{}
	s, err := New("borrowed", rs, WithOwnership(false))
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, entry("a")))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx), "重复关闭不报错")
	assert.Zero(t, rs.closed)
	assert.Equal(t, []int{1}, rs.sizes())

	assert.ErrorIs(t, s.Write(ctx, entry("late")), ErrClosed)
}

func TestSink_EntryCopied(t *testing.T) {
	ctx := context.Background()
	rs := &recordingSender{}
	s, err := New("copy", rs)
	require.NoError(t, err)

	e := entry("original")
	e.SetProperty("k", "v")
	require.NoError(t, s.Write(ctx, e))
	e.Message = "mutated"
	e.SetProperty("k", "changed")

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, [][]string{{"original"}}, rs.batches)
	require.NoError(t, s.Close(ctx))
}

func TestSink_Retry(t *testing.T) {
	ctx := context.Background()
	flaky := errors.New("flaky")
	rs := &recordingSender{fail: func(call int) error {
		if call < 3 {
			return flaky
		}
		return nil
	}}
	s, err := New("retry", rs, WithPolicy(Policy{
		Retry: &RetryConfig{Attempts: 3, Delay: time.Millisecond},
	}))
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, entry("a")))
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 3, rs.calls)
	assert.Equal(t, uint64(1), s.Stats().BatchesSent)
	require.NoError(t, s.Close(ctx))
}

func TestSink_Breaker(t *testing.T) {
	ctx := context.Background()
	down := errors.New("down")
	rs := &recordingSender{fail: func(int) error { return down }}
	s, err := New("breaker", rs, WithPolicy(Policy{
		Breaker: &BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Hour},
	}))
	require.NoError(t, err)
	assert.Equal(t, "closed", s.Stats().BreakerState)

	for range 2 {
		require.NoError(t, s.Write(ctx, entry("a")))
		assert.ErrorIs(t, s.Flush(ctx), down)
	}
	assert.Equal(t, "open", s.Stats().BreakerState)

	require.NoError(t, s.Write(ctx, entry("b")))
	assert.ErrorIs(t, s.Flush(ctx), gobreaker.ErrOpenState)
	assert.Equal(t, 2, rs.calls, "熔断打开后不再调用 Sender")
	assert.Equal(t, uint64(3), s.Stats().EntriesDropped)

	rs.fail = nil
	require.NoError(t, s.Close(ctx))
}

func TestSink_BreakerSuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	down := errors.New("down")
	// 奇数次失败、偶数次成功，连续失败数始终不超过 1
	rs := &recordingSender{fail: func(call int) error {
		if call%2 == 1 {
			return down
		}
		return nil
	}}
	s, err := New("breaker-reset", rs, WithPolicy(Policy{
		Breaker: &BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Hour},
	}))
	require.NoError(t, err)

	for i := range 4 {
		require.NoError(t, s.Write(ctx, entry("a")))
		if i%2 == 0 {
			assert.ErrorIs(t, s.Flush(ctx), down)
		} else {
			assert.NoError(t, s.Flush(ctx))
		}
	}
	assert.Equal(t, "closed", s.Stats().BreakerState, "成功发送会清零连续失败计数")
	assert.Equal(t, 4, rs.calls)
	require.NoError(t, s.Close(ctx))
}

func TestSink_FlushTimeout(t *testing.T) {
	blocking := senderFunc(func(ctx context.Context, _ []*xentry.Entry) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s, err := New("slow", blocking, WithFlushTimeout(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), entry("a")))
	assert.ErrorIs(t, s.Flush(context.Background()), context.DeadlineExceeded)
	require.NoError(t, s.Close(context.Background()))
}

type senderFunc func(ctx context.Context, batch []*xentry.Entry) error

func (f senderFunc) Send(ctx context.Context, batch []*xentry.Entry) error { return f(ctx, batch) }

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

func TestSink_Observer(t *testing.T) {
	ctx := context.Background()
	rec := &spanRecorder{}
	s, err := New("obs", &recordingSender{}, WithObserver(rec), WithBatchSize(2))
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, entry("a")))
	require.NoError(t, s.Write(ctx, entry("b")))
	require.NoError(t, s.Close(ctx))

	require.Len(t, rec.started, 1, "空缓冲 Flush 不产生跨度")
	assert.Equal(t, "xbatch", rec.started[0].Component)
	assert.Equal(t, "send", rec.started[0].Operation)
	assert.Contains(t, rec.started[0].Attrs, xmetrics.Int(xmetrics.AttrBatchSize, 2))
	require.Len(t, rec.results, 1)
	assert.NoError(t, rec.results[0].Err)
}
