package xsink

import (
	"context"
	"errors"
	"fmt"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
)

var (
	// ErrClosed sink 已关闭
	ErrClosed = errors.New("xsink: sink closed")

	// ErrNilWriter Writer sink 的目标为 nil
	ErrNilWriter = errors.New("xsink: nil writer")

	// ErrNilFunc Func sink 没有写入函数
	ErrNilFunc = errors.New("xsink: nil write func")
)

// Sink 日志输出目标。
//
// Write 由 dispatch 的单个 drain goroutine 串行调用；Flush 与 Close 可能来自其他 goroutine，
// 实现需要自行保证并发安全。Close 可重复调用。
type Sink interface {
	Write(ctx context.Context, e *xentry.Entry) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// Named 可选接口，诊断日志用它标识 sink
type Named interface {
	Name() string
}

// NameOf 返回 sink 的名称，未实现 Named 时使用类型名
func NameOf(s any) string {
	if n, ok := s.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// format 渲染并追加换行
func format(f xentry.Formatter, e *xentry.Entry) ([]byte, error) {
	line, err := f.Format(e)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	return append(buf, '\n'), nil
}
