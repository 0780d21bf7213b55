package xpool

import "github.com/omeyang/xlogpipe/pkg/observability/xlog"

// Option Pool 选项
type Option func(*options)

type options struct {
	logger xlog.Logger
	name   string
}

// WithLogger 设置 panic 诊断日志，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName 设置名称，出现在诊断日志中
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}
