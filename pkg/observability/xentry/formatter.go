package xentry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TimestampLayout 文本格式的时间布局（毫秒精度）
const TimestampLayout = "2006-01-02 15:04:05.000"

// Formatter 把条目渲染成一行文本（不含换行）
type Formatter interface {
	Format(e *Entry) (string, error)
}

// FormatterFunc 函数适配器
type FormatterFunc func(e *Entry) (string, error)

// Format 实现 Formatter
func (f FormatterFunc) Format(e *Entry) (string, error) { return f(e) }

// TextFormatter 文本格式：
//
//	[2024-01-02 15:04:05.000] [Info] [category] message | error=... | k=v k2=v2
//
// 属性按 key 排序，保证输出稳定。
type TextFormatter struct {
	// TimestampLayout 为空时使用 TimestampLayout
	TimestampLayout string
	// OmitProperties 不输出属性
	OmitProperties bool
}

// Format 实现 Formatter
func (f TextFormatter) Format(e *Entry) (string, error) {
	layout := f.TimestampLayout
	if layout == "" {
		layout = TimestampLayout
	}

	var b strings.Builder
	b.Grow(64 + len(e.Message))
	b.WriteByte('[')
	b.WriteString(e.Timestamp.Format(layout))
	b.WriteString("] [")
	b.WriteString(e.Level.String())
	b.WriteString("] ")
	if e.Category != "" {
		b.WriteByte('[')
		b.WriteString(e.Category)
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(" | error=")
		b.WriteString(e.Err.Error())
	}
	if !f.OmitProperties && len(e.Properties) > 0 {
		b.WriteString(" |")
		for _, k := range sortedKeys(e.Properties) {
			fmt.Fprintf(&b, " %s=%v", k, e.Properties[k])
		}
	}
	return b.String(), nil
}

// JSONFormatter 每条日志一个 JSON 对象，字段见 Record
type JSONFormatter struct{}

// Format 实现 Formatter
func (JSONFormatter) Format(e *Entry) (string, error) {
	data, err := json.Marshal(e.ToRecord())
	if err != nil {
		// 属性中有不可序列化的值时降级为字符串
		r := e.ToRecord()
		r.Properties = stringify(r.Properties)
		data, err = json.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("xentry: marshal entry: %w", err)
		}
	}
	return string(data), nil
}

// ParseFormatter 按名称返回内置格式化器：text 或 json（空值为 text）
func ParseFormatter(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		return TextFormatter{}, nil
	case "json":
		return JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("xentry: unknown format %q", name)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringify(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, err := json.Marshal(v); err != nil {
			out[k] = fmt.Sprint(v)
			continue
		}
		out[k] = v
	}
	return out
}
