package xdispatch

import (
	"context"
	"runtime/debug"

	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
)

// 辅助函数写入的属性键
const (
	PropOperation  = "operation"
	PropDurationMS = "duration_ms"
)

// Time 执行 fn 并以 level 记录耗时，fn 失败时改记 Error 并附带异常。返回 fn 的错误。
//
// l 为 nil 时只执行 fn。
func Time(ctx context.Context, l *Logger, level xlevel.Level, op string, fn func(context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	start := l.opts.now()
	err := fn(ctx)
	elapsed := l.opts.now().Sub(start)

	opts := []EntryOption{
		WithProperty(PropOperation, op),
		WithProperty(PropDurationMS, elapsed.Milliseconds()),
	}
	if err != nil {
		l.Log(ctx, xlevel.Error, "operation "+op+" failed after "+elapsed.String(), append(opts, WithError(err))...)
		return err
	}
	l.Log(ctx, level, "operation "+op+" completed in "+elapsed.String(), opts...)
	return nil
}

// SafeExecute 执行 fn，错误或 panic 以 Error 级别记录后返回；panic 转成 *PanicError
func SafeExecute(ctx context.Context, l *Logger, op string, fn func(context.Context) error) error {
	_, err := SafeExecuteValue(ctx, l, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// SafeExecuteValue 同 SafeExecute，失败时返回 T 的零值
func SafeExecuteValue[T any](ctx context.Context, l *Logger, op string, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		if err != nil && l != nil {
			l.Log(ctx, xlevel.Error, "operation "+op+" failed",
				WithError(err), WithProperty(PropOperation, op))
		}
	}()
	return fn(ctx)
}
