package xdispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xlogpipe/pkg/context/xctx"
	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/observability/xmetrics"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xhandler"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xsink"
)

// State 生命周期状态
type State int32

const (
	StateRunning State = iota
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats 运行统计快照
type Stats struct {
	// Enqueued 通过级别过滤并入队的条目数
	Enqueued uint64
	// Filtered 被级别过滤掉的条目数
	Filtered uint64
	// Dropped 关闭后提交而被丢弃的条目数
	Dropped uint64
	// Processed 已分发给所有 sink 与 handler 的条目数
	Processed uint64
	// Pending 队列中尚未处理的条目数
	Pending int

	SinkErrors    uint64
	HandlerErrors uint64
	// Panics 恢复的 panic 次数，同时计入 SinkErrors 或 HandlerErrors
	Panics uint64
}

// Logger 异步日志管线
type Logger struct {
	cfg  Config
	opts options
	diag xlog.Logger

	mu    sync.Mutex
	queue []*xentry.Entry
	state atomic.Int32

	signal   chan struct{}
	shutdown chan struct{}
	done     chan struct{}
	stopped  chan struct{}

	loopCtx    context.Context
	cancelLoop context.CancelFunc
	cron       *cron.Cron

	enqueued      atomic.Uint64
	filtered      atomic.Uint64
	dropped       atomic.Uint64
	processed     atomic.Uint64
	sinkErrors    atomic.Uint64
	handlerErrors atomic.Uint64
	panics        atomic.Uint64
}

// New 校验配置并启动 drain goroutine
func New(cfg Config, opts ...Option) (*Logger, error) {
	for i, s := range cfg.Sinks {
		if s == nil {
			return nil, fmt.Errorf("%w: index %d", ErrNilSink, i)
		}
	}
	for i, h := range cfg.Handlers {
		if h == nil {
			return nil, fmt.Errorf("%w: index %d", ErrNilHandler, i)
		}
	}
	cfg.Sinks = slices.Clone(cfg.Sinks)
	cfg.Handlers = slices.Clone(cfg.Handlers)

	o := options{
		closeTimeout: DefaultCloseTimeout,
		observer:     xmetrics.NoopObserver{},
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	diag := xlog.OrDefault(o.diag).With(xlog.Component("xdispatch"))
	if o.name != "" {
		diag = diag.With(xlog.LoggerName(o.name))
	}

	l := &Logger{
		cfg:      cfg,
		opts:     o,
		diag:     diag,
		signal:   make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	l.loopCtx, l.cancelLoop = context.WithCancel(context.Background())

	if o.flushSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(o.flushSchedule, l.scheduledFlush); err != nil {
			l.cancelLoop()
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, o.flushSchedule, err)
		}
		l.cron = c
		c.Start()
	}

	go l.run()
	return l, nil
}

// Name 返回 WithName 设置的名称
func (l *Logger) Name() string { return l.opts.name }

// MinimumLevel 返回最低级别
func (l *Logger) MinimumLevel() xlevel.Level { return l.cfg.MinimumLevel }

// State 返回当前状态
func (l *Logger) State() State { return State(l.state.Load()) }

// Stats 返回统计快照
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	pending := len(l.queue)
	l.mu.Unlock()
	return Stats{
		Enqueued:      l.enqueued.Load(),
		Filtered:      l.filtered.Load(),
		Dropped:       l.dropped.Load(),
		Processed:     l.processed.Load(),
		Pending:       pending,
		SinkErrors:    l.sinkErrors.Load(),
		HandlerErrors: l.handlerErrors.Load(),
		Panics:        l.panics.Load(),
	}
}

// Enabled 判断该级别的条目是否会被接收
func (l *Logger) Enabled(level xlevel.Level) bool {
	return xlevel.AtLeast(level, l.cfg.MinimumLevel)
}

// Log 提交一条日志，立即返回。
//
// ctx 中的属性与追踪字段合并进条目属性，条目自带的同名属性优先。ctx 可以为 nil。
// 关闭后提交的条目被丢弃并计入 Stats.Dropped。
func (l *Logger) Log(ctx context.Context, level xlevel.Level, msg string, opts ...EntryOption) {
	if !l.Enabled(level) {
		l.filtered.Add(1)
		return
	}
	if l.State() != StateRunning {
		l.dropped.Add(1)
		return
	}

	e := &xentry.Entry{
		Timestamp: l.opts.now(),
		Level:     level,
		Category:  l.cfg.DefaultCategory,
		Message:   msg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.Properties = xctx.Enrich(ctx, e.Properties)

	l.mu.Lock()
	// 状态在锁内复核，保证 Close 之后不会再有条目落入已完成最终 drain 的队列
	if l.State() != StateRunning {
		l.mu.Unlock()
		l.dropped.Add(1)
		return
	}
	l.queue = append(l.queue, e)
	l.mu.Unlock()
	l.enqueued.Add(1)

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *Logger) Trace(ctx context.Context, msg string, opts ...EntryOption) {
	l.Log(ctx, xlevel.Trace, msg, opts...)
}

func (l *Logger) Debug(ctx context.Context, msg string, opts ...EntryOption) {
	l.Log(ctx, xlevel.Debug, msg, opts...)
}

func (l *Logger) Info(ctx context.Context, msg string, opts ...EntryOption) {
	l.Log(ctx, xlevel.Info, msg, opts...)
}

func (l *Logger) Warning(ctx context.Context, msg string, opts ...EntryOption) {
	l.Log(ctx, xlevel.Warning, msg, opts...)
}

func (l *Logger) Error(ctx context.Context, msg string, opts ...EntryOption) {
	l.Log(ctx, xlevel.Error, msg, opts...)
}

// Fatal 记录 Fatal 级别日志，不会退出进程
func (l *Logger) Fatal(ctx context.Context, msg string, opts ...EntryOption) {
	l.Log(ctx, xlevel.Fatal, msg, opts...)
}

// LogWithProperties 附带一组属性记录日志
func (l *Logger) LogWithProperties(ctx context.Context, level xlevel.Level, msg string, props map[string]any, opts ...EntryOption) {
	l.Log(ctx, level, msg, append(opts, WithProperties(props))...)
}

// run drain goroutine 主循环
func (l *Logger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.signal:
			l.drain()
		case <-l.shutdown:
			l.drain()
			return
		}
	}
}

// drain 取空队列并逐条分发，直到队列为空
func (l *Logger) drain() {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}

		ctx, span := xmetrics.Start(l.loopCtx, l.opts.observer, xmetrics.SpanOptions{
			Component: "xdispatch",
			Operation: "drain",
			Attrs: []xmetrics.Attr{
				xmetrics.String(xmetrics.AttrLogger, l.opts.name),
				xmetrics.Int(xmetrics.AttrBatchSize, len(batch)),
			},
		})
		var failures int
		for _, e := range batch {
			failures += l.dispatch(ctx, e)
			l.processed.Add(1)
		}
		result := xmetrics.Result{Attrs: []xmetrics.Attr{xmetrics.Int("failures", failures)}}
		if failures > 0 {
			result.Status = xmetrics.StatusError
		}
		span.End(result)
	}
}

// dispatch 把一个条目交给所有 sink 和匹配的 handler，返回失败次数
func (l *Logger) dispatch(ctx context.Context, e *xentry.Entry) int {
	var failures int
	for _, s := range l.cfg.Sinks {
		if err := isolate(func() error { return s.Write(ctx, e) }); err != nil {
			failures++
			l.sinkErrors.Add(1)
			l.report(ctx, "sink write failed", err, xlog.Sink(xsink.NameOf(s)), xlog.Category(e.Category))
		}
	}
	for _, h := range l.cfg.Handlers {
		err := isolate(func() error {
			if !h.ShouldHandle(e) {
				return nil
			}
			return h.Handle(ctx, e)
		})
		if err != nil {
			failures++
			l.handlerErrors.Add(1)
			l.report(ctx, "handler failed", err, xlog.Handler(handlerName(h)), xlog.Category(e.Category))
		}
	}
	return failures
}

// isolate 执行 fn，把 panic 转成 *PanicError
func isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// report 写诊断日志，panic 附带调用栈
func (l *Logger) report(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, xlog.Err(err))
	var pe *PanicError
	if errors.As(err, &pe) {
		l.panics.Add(1)
		l.diag.Error(ctx, msg, append(attrs, slog.String(xlog.KeyStack, string(pe.Stack)))...)
		return
	}
	l.diag.Warn(ctx, msg, attrs...)
}

func handlerName(h xhandler.Handler) string {
	return xsink.NameOf(h)
}

// Flush 依次 Flush 每个 sink，错误互不影响，合并后返回
func (l *Logger) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range l.cfg.Sinks {
		if err := isolate(func() error { return s.Flush(ctx) }); err != nil {
			l.sinkErrors.Add(1)
			l.report(ctx, "sink flush failed", err, xlog.Sink(xsink.NameOf(s)))
			errs = append(errs, fmt.Errorf("flush %s: %w", xsink.NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}

func (l *Logger) scheduledFlush() {
	// 错误已在 Flush 内计数并写诊断日志
	_ = l.Flush(l.loopCtx)
}

// Close 停止接收、等待 drain 结束，再 Flush 并 Close 每个 sink。
//
// drain 超过关闭期限（或 ctx 先结束）时取消 sink 调用的 ctx，返回值包含 ErrCloseTimeout。
// 重复调用等待首次关闭完成后返回 nil。
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown)) {
		l.mu.Unlock()
		select {
		case <-l.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.mu.Unlock()

	if l.cron != nil {
		<-l.cron.Stop().Done()
	}
	close(l.shutdown)

	var errs []error
	timer := time.NewTimer(l.opts.closeTimeout)
	defer timer.Stop()
	select {
	case <-l.done:
	case <-timer.C:
		l.cancelLoop()
		errs = append(errs, ErrCloseTimeout)
		l.diag.Warn(ctx, "drain did not finish before close timeout",
			xlog.Duration(l.opts.closeTimeout), xlog.Count(int64(l.Stats().Pending)))
	case <-ctx.Done():
		l.cancelLoop()
		errs = append(errs, ErrCloseTimeout, ctx.Err())
	}

	for _, s := range l.cfg.Sinks {
		name := xsink.NameOf(s)
		if err := isolate(func() error { return s.Flush(ctx) }); err != nil {
			l.sinkErrors.Add(1)
			l.report(ctx, "sink flush failed", err, xlog.Sink(name))
			errs = append(errs, fmt.Errorf("flush %s: %w", name, err))
		}
		if err := isolate(func() error { return s.Close(ctx) }); err != nil {
			l.sinkErrors.Add(1)
			l.report(ctx, "sink close failed", err, xlog.Sink(name))
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}

	l.cancelLoop()
	l.state.Store(int32(StateStopped))
	close(l.stopped)
	return errors.Join(errs...)
}
