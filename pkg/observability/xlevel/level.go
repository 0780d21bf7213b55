package xlevel

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrEmptyName 自定义级别名称为空
	ErrEmptyName = errors.New("xlevel: custom level name is required")

	// ErrUnknownLevel 无法识别的级别名称
	ErrUnknownLevel = errors.New("xlevel: unknown level")

	// ErrNameConflict 自定义级别与预定义级别或已注册级别重名
	ErrNameConflict = errors.New("xlevel: level name already registered")
)

// kind 级别变体标记
type kind uint8

const (
	kindInvalid kind = iota
	kindPredefined
	kindCustom
)

// Level 日志级别，预定义或自定义两种变体。
//
// 两种变体共享同一个整数投影（Value），比较只看该整数，
// 因此自定义级别可以插在任意两个预定义级别之间。
// 零值 Level{} 没有整数投影，参与过滤时按放行处理。
type Level struct {
	kind  kind
	value int
	name  string
}

// 预定义级别，序号 0..6
var (
	Trace   = Level{kind: kindPredefined, value: 0, name: "Trace"}
	Debug   = Level{kind: kindPredefined, value: 1, name: "Debug"}
	Info    = Level{kind: kindPredefined, value: 2, name: "Info"}
	Warning = Level{kind: kindPredefined, value: 3, name: "Warning"}
	Error   = Level{kind: kindPredefined, value: 4, name: "Error"}
	Fatal   = Level{kind: kindPredefined, value: 5, name: "Fatal"}
	None    = Level{kind: kindPredefined, value: 6, name: "None"}
)

// predefined 按序号排列的预定义级别
var predefined = [...]Level{Trace, Debug, Info, Warning, Error, Fatal, None}

// Predefined 返回全部预定义级别（按序号升序）
func Predefined() []Level {
	out := make([]Level, len(predefined))
	copy(out, predefined[:])
	return out
}

// Custom 创建自定义级别
func Custom(value int, name string) (Level, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Level{}, ErrEmptyName
	}
	return Level{kind: kindCustom, value: value, name: name}, nil
}

// MustCustom 与 Custom 相同，失败时 panic。适用于包级变量初始化。
func MustCustom(value int, name string) Level {
	l, err := Custom(value, name)
	if err != nil {
		panic(err)
	}
	return l
}

// Value 返回级别的整数投影。ok=false 表示该级别无效（零值）。
func (l Level) Value() (v int, ok bool) {
	if l.kind == kindInvalid {
		return 0, false
	}
	return l.value, true
}

// IsCustom 是否为自定义级别
func (l Level) IsCustom() bool { return l.kind == kindCustom }

// IsPredefined 是否为预定义级别
func (l Level) IsPredefined() bool { return l.kind == kindPredefined }

// IsValid 是否具有整数投影
func (l Level) IsValid() bool { return l.kind != kindInvalid }

// Name 返回级别名称
func (l Level) Name() string { return l.name }

// String 返回级别名称，零值返回 "Invalid"
func (l Level) String() string {
	if l.kind == kindInvalid {
		return "Invalid"
	}
	return l.name
}

// Equal 两个级别是否完全相同（变体、数值、名称）
func (l Level) Equal(o Level) bool {
	return l.kind == o.kind && l.value == o.value && l.name == o.name
}

// Compare 按整数投影比较，返回 -1/0/1。
// 无投影的级别视为最小值，两者都无投影时相等。
func Compare(a, b Level) int {
	av, aok := a.Value()
	bv, bok := b.Value()
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// AtLeast 判断 entry 级别是否达到 minimum。
//
// 任一方没有整数投影时返回 true：配置不匹配时宁可多记，不静默丢日志。
func AtLeast(entry, minimum Level) bool {
	ev, eok := entry.Value()
	mv, mok := minimum.Value()
	if !eok || !mok {
		return true
	}
	return ev >= mv
}

// MarshalText 实现 encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler，通过默认注册表解析
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel 解析级别名称（大小写不敏感）。
//
// 依次尝试：预定义名称（含 warn 别名）、默认注册表中的自定义级别、
// 纯数字（映射到同序号的预定义级别）。
func ParseLevel(s string) (Level, error) {
	return defaultRegistry.Parse(s)
}

func parsePredefined(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return Trace, true
	case "debug":
		return Debug, true
	case "info", "information":
		return Info, true
	case "warn", "warning":
		return Warning, true
	case "error":
		return Error, true
	case "fatal", "critical":
		return Fatal, true
	case "none", "off":
		return None, true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n >= 0 && n < len(predefined) {
		return predefined[n], true
	}
	return Level{}, false
}
