package xdispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xsink"
)

// steppingClock 每次调用前进 step
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	cur := start
	return func() time.Time {
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func TestTime(t *testing.T) {
	ctx := context.Background()
	c := &collector{}
	l := newLogger(t, Config{Sinks: []xsink.Sink{c.sink("mem")}},
		WithClock(steppingClock(time.Unix(0, 0), 250*time.Millisecond)))

	require.NoError(t, Time(ctx, l, xlevel.Debug, "load", func(context.Context) error { return nil }))
	boom := errors.New("boom")
	assert.ErrorIs(t, Time(ctx, l, xlevel.Debug, "save", func(context.Context) error { return boom }), boom)
	require.NoError(t, l.Close(ctx))

	got := c.all()
	require.Len(t, got, 2)
	assert.True(t, got[0].Level.Equal(xlevel.Debug))
	assert.Equal(t, "operation load completed in 250ms", got[0].Message)
	assert.Equal(t, "load", got[0].Properties[PropOperation])
	assert.Equal(t, int64(250), got[0].Properties[PropDurationMS])

	assert.True(t, got[1].Level.Equal(xlevel.Error))
	assert.ErrorIs(t, got[1].Err, boom)
	assert.Equal(t, "save", got[1].Properties[PropOperation])

	t.Run("nil logger", func(t *testing.T) {
		called := false
		assert.NoError(t, Time(ctx, nil, xlevel.Info, "noop", func(context.Context) error {
			called = true
			return nil
		}))
		assert.True(t, called)
	})
}

func TestSafeExecute(t *testing.T) {
	ctx := context.Background()
	c := &collector{}
	l := newLogger(t, Config{Sinks: []xsink.Sink{c.sink("mem")}})

	assert.NoError(t, SafeExecute(ctx, l, "ok", func(context.Context) error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, SafeExecute(ctx, l, "fail", func(context.Context) error { return boom }), boom)

	err := SafeExecute(ctx, l, "panic", func(context.Context) error { panic("bad state") })
	assert.ErrorIs(t, err, ErrPanic)

	v, err := SafeExecuteValue(ctx, l, "value", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = SafeExecuteValue(ctx, l, "value-panic", func(context.Context) (int, error) { panic("again") })
	assert.ErrorIs(t, err, ErrPanic)
	assert.Zero(t, v)

	require.NoError(t, l.Close(ctx))

	got := c.all()
	require.Len(t, got, 3, "只有失败被记录")
	for i, op := range []string{"fail", "panic", "value-panic"} {
		assert.Equal(t, op, got[i].Properties[PropOperation])
		assert.True(t, got[i].Level.Equal(xlevel.Error))
		assert.Error(t, got[i].Err)
	}

	t.Run("nil logger", func(t *testing.T) {
		assert.ErrorIs(t, SafeExecute(ctx, nil, "x", func(context.Context) error { panic("p") }), ErrPanic)
	})
}
