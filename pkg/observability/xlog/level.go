package xlog

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
)

// Level 诊断日志级别，与 slog.Level 兼容
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// String 标准级别返回大写名称，其余委托给 slog（如 "INFO+2"）
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return slog.Level(l).String()
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel 解析诊断级别。
//
// 除 debug/info/warn/error 外，也接受管线级别名（trace、fatal 等），
// 由 [FromPipelineLevel] 映射，配置文件里两套级别可以写成同一种拼法。
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	pl, err := xlevel.ParseLevel(s)
	if err != nil || pl.IsCustom() {
		return LevelInfo, fmt.Errorf("xlog: unknown level %q", s)
	}
	return FromPipelineLevel(pl), nil
}

// FromPipelineLevel 把管线级别映射为诊断级别。
// Trace 归入 Debug，Fatal 与 None 归入 Error；自定义级别按数值落到最接近的档位。
func FromPipelineLevel(l xlevel.Level) Level {
	v, ok := l.Value()
	if !ok {
		return LevelInfo
	}
	switch {
	case v <= 1:
		return LevelDebug
	case v == 2:
		return LevelInfo
	case v == 3:
		return LevelWarn
	default:
		return LevelError
	}
}
