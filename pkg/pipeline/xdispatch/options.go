package xdispatch

import (
	"time"

	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/observability/xmetrics"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xhandler"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xsink"
)

// DefaultCloseTimeout Close 等待 drain goroutine 的默认期限
const DefaultCloseTimeout = time.Second

// Config 管线配置，New 时复制，之后不可变。
//
// MinimumLevel 为零值时不做级别过滤。
type Config struct {
	MinimumLevel    xlevel.Level
	DefaultCategory string
	Sinks           []xsink.Sink
	Handlers        []xhandler.Handler
}

type options struct {
	name          string
	closeTimeout  time.Duration
	diag          xlog.Logger
	observer      xmetrics.Observer
	flushSchedule string
	now           func() time.Time
}

// Option Logger 配置选项
type Option func(*options)

// WithName 设置名称，出现在诊断日志中
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithCloseTimeout 设置 Close 等待 drain goroutine 的期限
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}

// WithDiagnostics 设置诊断日志，默认 xlog.Default()
func WithDiagnostics(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.diag = l
		}
	}
}

// WithObserver 设置 drain 周期的观测器
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithFlushSchedule 按 cron 表达式定期 Flush 所有 sink，如 "@every 5s"
func WithFlushSchedule(spec string) Option {
	return func(o *options) { o.flushSchedule = spec }
}

// WithClock 设置条目时间戳来源
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
