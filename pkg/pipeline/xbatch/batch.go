package xbatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/observability/xmetrics"
)

// DefaultBatchSize 默认批次大小
const DefaultBatchSize = 100

var (
	// ErrClosed sink 已关闭
	ErrClosed = errors.New("xbatch: sink closed")

	// ErrNilSender 未提供 Sender
	ErrNilSender = errors.New("xbatch: nil sender")

	// ErrInvalidBatchSize 批次大小必须为正数
	ErrInvalidBatchSize = errors.New("xbatch: invalid batch size")
)

// Sender 把一个批次投递到远端。
//
// Send 由 Sink 串行调用，batch 在调用返回后不再被 Sink 修改；
// 异步投递的实现可以继续持有它。实现 io.Closer 时，Sink 拥有所有权的情况下会在 Close 时调用。
type Sender interface {
	Send(ctx context.Context, batch []*xentry.Entry) error
}

// Stats 运行统计
type Stats struct {
	BatchesSent    uint64
	BatchesFailed  uint64
	EntriesSent    uint64
	EntriesDropped uint64
	Buffered       int

	// BreakerState 熔断器状态，未启用熔断时为空
	BreakerState string
}

type options struct {
	batchSize    int
	owned        bool
	flushTimeout time.Duration
	policy       Policy
	observer     xmetrics.Observer
	logger       xlog.Logger
}

// Option Sink 配置选项
type Option func(*options)

// WithBatchSize 设置批次大小
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithOwnership 设置 Close 时是否关闭 Sender，默认 true
func WithOwnership(owned bool) Option {
	return func(o *options) { o.owned = owned }
}

// WithFlushTimeout 为每次发送设置超时，0 表示只受调用方 ctx 约束
func WithFlushTimeout(d time.Duration) Option {
	return func(o *options) { o.flushTimeout = d }
}

// WithPolicy 开启重试或熔断
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithObserver 设置发送观测器
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger 设置诊断日志
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Sink 批量缓冲 sink，实现 xsink.Sink
type Sink struct {
	name   string
	sender Sender
	opts   options
	guard  *guard

	mu  sync.Mutex
	buf []*xentry.Entry

	closed atomic.Bool

	batchesSent    atomic.Uint64
	batchesFailed  atomic.Uint64
	entriesSent    atomic.Uint64
	entriesDropped atomic.Uint64
}

// New 创建批量 sink。name 用于诊断日志和观测属性。
func New(name string, sender Sender, opts ...Option) (*Sink, error) {
	if sender == nil {
		return nil, ErrNilSender
	}
	o := options{
		batchSize: DefaultBatchSize,
		owned:     true,
		observer:  xmetrics.NoopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, o.batchSize)
	}
	return &Sink{
		name:   name,
		sender: sender,
		opts:   o,
		guard:  newGuard(name, o.policy),
		buf:    make([]*xentry.Entry, 0, o.batchSize),
	}, nil
}

// Name 实现 xsink.Named
func (s *Sink) Name() string { return s.name }

// Write 缓冲条目，攒满一个批次时同步发送。
// 条目会被复制，调用返回后调用方可以复用原条目。
func (s *Sink) Write(ctx context.Context, e *xentry.Entry) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, e.Clone())
	if len(s.buf) < s.opts.batchSize {
		return nil
	}
	return s.sendLocked(ctx)
}

// Flush 把缓冲中的条目作为一个批次发送，失败的批次被丢弃
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(ctx)
}

// Close Flush 后按所有权关闭 Sender。重复调用返回 nil。
func (s *Sink) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.Flush(ctx)
	if s.opts.owned {
		if c, ok := s.sender.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("xbatch: close %s: %w", s.name, cerr))
			}
		}
	}
	return err
}

// Stats 返回统计快照
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	buffered := len(s.buf)
	s.mu.Unlock()
	return Stats{
		BatchesSent:    s.batchesSent.Load(),
		BatchesFailed:  s.batchesFailed.Load(),
		EntriesSent:    s.entriesSent.Load(),
		EntriesDropped: s.entriesDropped.Load(),
		Buffered:       buffered,
		BreakerState:   s.guard.state(),
	}
}

// sendLocked 取出缓冲并发送，调用方持有 mu
func (s *Sink) sendLocked(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	batch := s.buf
	s.buf = make([]*xentry.Entry, 0, s.opts.batchSize)

	if s.opts.flushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.flushTimeout)
		defer cancel()
	}

	ctx, span := xmetrics.Start(ctx, s.opts.observer, xmetrics.SpanOptions{
		Component: "xbatch",
		Operation: "send",
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String(xmetrics.AttrSink, s.name),
			xmetrics.Int(xmetrics.AttrBatchSize, len(batch)),
		},
	})
	err := s.guard.do(ctx, func(ctx context.Context) error {
		return s.sender.Send(ctx, batch)
	})
	span.End(xmetrics.Result{Err: err})

	n := uint64(len(batch))
	if err != nil {
		s.batchesFailed.Add(1)
		s.entriesDropped.Add(n)
		if s.opts.logger != nil {
			s.opts.logger.Warn(ctx, "batch dropped",
				xlog.Sink(s.name), xlog.Count(int64(n)), xlog.Err(err))
		}
		return fmt.Errorf("xbatch: send %d entries to %s: %w", n, s.name, err)
	}
	s.batchesSent.Add(1)
	s.entriesSent.Add(n)
	return nil
}
