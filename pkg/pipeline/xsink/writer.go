package xsink

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
)

// WriterOption Writer sink 选项
type WriterOption func(*Writer)

// WithFormatter 设置格式化器，默认 TextFormatter
func WithFormatter(f xentry.Formatter) WriterOption {
	return func(w *Writer) {
		if f != nil {
			w.formatter = f
		}
	}
}

// WithName 设置诊断名称
func WithName(name string) WriterOption {
	return func(w *Writer) { w.name = name }
}

// WithOwnership Close 时是否关闭底层 io.Writer（若实现 io.Closer），默认 false
func WithOwnership(owned bool) WriterOption {
	return func(w *Writer) { w.owned = owned }
}

// Writer 把条目按格式写入任意 io.Writer
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	formatter xentry.Formatter
	name      string
	owned     bool
	closed    atomic.Bool
}

// NewWriter 创建 Writer sink
func NewWriter(w io.Writer, opts ...WriterOption) (*Writer, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	s := &Writer{w: w, formatter: xentry.TextFormatter{}, name: "writer"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Writer) Name() string { return s.name }

func (s *Writer) Write(_ context.Context, e *xentry.Entry) error {
	if s.closed.Load() {
		return ErrClosed
	}
	line, err := format(s.formatter, e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}

// Flush 底层实现了 Sync 或 Flush 时调用之
func (s *Writer) Flush(_ context.Context) error {
	if s.closed.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return flushWriter(s.w)
}

func (s *Writer) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := flushWriter(s.w)
	if s.owned {
		if c, ok := s.w.(io.Closer); ok {
			if cerr := c.Close(); err == nil {
				err = cerr
			}
		}
	}
	return err
}

func flushWriter(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Sync() error }:
		return f.Sync()
	case interface{ Flush() error }:
		return f.Flush()
	}
	return nil
}
