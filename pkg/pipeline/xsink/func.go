package xsink

import (
	"context"
	"sync/atomic"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
)

// Func 由函数组成的 sink，FlushFn/CloseFn 可为空
type Func struct {
	SinkName string
	WriteFn  func(ctx context.Context, e *xentry.Entry) error
	FlushFn  func(ctx context.Context) error
	CloseFn  func(ctx context.Context) error

	closed atomic.Bool
}

func (f *Func) Name() string { return f.SinkName }

func (f *Func) Write(ctx context.Context, e *xentry.Entry) error {
	if f.closed.Load() {
		return ErrClosed
	}
	if f.WriteFn == nil {
		return ErrNilFunc
	}
	return f.WriteFn(ctx, e)
}

func (f *Func) Flush(ctx context.Context) error {
	if f.FlushFn == nil || f.closed.Load() {
		return nil
	}
	return f.FlushFn(ctx)
}

// Close 只调用一次 CloseFn
func (f *Func) Close(ctx context.Context) error {
	if f.closed.Swap(true) || f.CloseFn == nil {
		return nil
	}
	return f.CloseFn(ctx)
}
