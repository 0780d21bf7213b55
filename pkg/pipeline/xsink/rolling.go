package xsink

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xrotate"
)

// Rolling 按大小与日期轮转的文件 sink。
// 轮转日期取条目时间戳，而不是写入时的墙上时钟。
type Rolling struct {
	file      *xrotate.Generational
	formatter xentry.Formatter
	closed    atomic.Bool
}

// NewRolling 打开 path 对应的分代文件
func NewRolling(path string, formatter xentry.Formatter, opts ...xrotate.GenerationalOption) (*Rolling, error) {
	g, err := xrotate.NewGenerational(path, opts...)
	if err != nil {
		return nil, err
	}
	if formatter == nil {
		formatter = xentry.TextFormatter{}
	}
	return &Rolling{file: g, formatter: formatter}, nil
}

func (r *Rolling) Name() string { return "rolling:" + r.file.ActivePath() }

// File 底层分代文件
func (r *Rolling) File() *xrotate.Generational { return r.file }

func (r *Rolling) Write(_ context.Context, e *xentry.Entry) error {
	if r.closed.Load() {
		return ErrClosed
	}
	line, err := format(r.formatter, e)
	if err != nil {
		return err
	}
	return r.file.WriteAt(e.Timestamp, line)
}

func (r *Rolling) Flush(_ context.Context) error {
	if r.closed.Load() {
		return nil
	}
	return r.file.Sync()
}

func (r *Rolling) Close(_ context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}
	syncErr := r.file.Sync()
	closeErr := r.file.Close()
	if errors.Is(closeErr, xrotate.ErrClosed) {
		closeErr = nil
	}
	return errors.Join(syncErr, closeErr)
}
