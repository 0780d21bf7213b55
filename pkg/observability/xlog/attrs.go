package xlog

import (
	"log/slog"
	"time"

	"github.com/omeyang/xlogpipe/pkg/context/xctx"
)

// 诊断日志的标准字段名
const (
	KeyError     = "error"
	KeyStack     = "stack"
	KeyDuration  = "duration"
	KeyCount     = "count"
	KeyComponent = "component"
	KeyOperation = "operation"

	// KeyLogger 管线 logger 名称
	KeyLogger = "logger"
	// KeySink 出错的 sink 名称
	KeySink = "sink"
	// KeyHandler 出错的 handler 名称
	KeyHandler = "handler"
	// KeyCategory 条目类别
	KeyCategory = "category"
	// KeyPath 文件路径
	KeyPath = "path"

	KeyRequestID = xctx.KeyRequestID
)

// Err 创建错误属性，nil 返回空属性（slog 会忽略）
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 以可读格式记录耗时
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

func Count(n int64) slog.Attr { return slog.Int64(KeyCount, n) }

func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }

func Operation(name string) slog.Attr { return slog.String(KeyOperation, name) }

func LoggerName(name string) slog.Attr { return slog.String(KeyLogger, name) }

func Sink(name string) slog.Attr { return slog.String(KeySink, name) }

func Handler(name string) slog.Attr { return slog.String(KeyHandler, name) }

func Category(c string) slog.Attr { return slog.String(KeyCategory, c) }

func Path(p string) slog.Attr { return slog.String(KeyPath, p) }
