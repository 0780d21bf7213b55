// xlog.go 定义诊断日志的核心接口：Logger、Leveler、LoggerWithLevel
//
// xlog 只用于管线自身的诊断输出（sink 失败、轮转错误、关停超时等），
// 业务日志条目走 xdispatch，不经过这里。
package xlog

import (
	"context"
	"log/slog"
)

// Logger 诊断日志接口，所有方法都要求传入 context
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// Stack 记录带当前 goroutine 调用栈的错误日志，用于 panic 恢复后的诊断
	Stack(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回带固定属性的派生 Logger，派生 logger 共享父级的级别
	With(attrs ...slog.Attr) Logger

	// WithGroup 返回带分组的派生 Logger
	WithGroup(name string) Logger
}

// Leveler 级别控制接口
type Leveler interface {
	SetLevel(level Level)
	GetLevel() Level
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel Build 的返回类型
type LoggerWithLevel interface {
	Logger
	Leveler
}
