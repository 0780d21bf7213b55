package xentry

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
)

// Entry 一条日志。
//
// Timestamp/Level/Category/Err 创建后不应再修改；Message 允许原地改写（脱敏），
// Properties 在入队前由环境上下文补全。
// 条目由 dispatch 引擎独占，交给 sink 后 sink 不应在 Write 返回后继续持有。
type Entry struct {
	Timestamp  time.Time
	Level      xlevel.Level
	Category   string
	Message    string
	Err        error
	Properties map[string]any
}

// New 创建条目，时间戳取当前时间
func New(level xlevel.Level, category, message string, err error) *Entry {
	return &Entry{
		Timestamp: time.Now(),
		Level:     level,
		Category:  category,
		Message:   message,
		Err:       err,
	}
}

// SetProperty 写入属性，覆盖同名 key
func (e *Entry) SetProperty(key string, value any) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[key] = value
}

// Clone 深拷贝属性表，其余字段按值复制。
// 需要在 Write 之后保留条目的 sink（如批量 sink）使用。
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Properties != nil {
		c.Properties = maps.Clone(e.Properties)
	}
	return &c
}

// ErrorText 返回错误文本，无错误返回空字符串
func (e *Entry) ErrorText() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Record 远端 sink 共用的序列化形态
type Record struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Category   string         `json:"category,omitempty"`
	Message    string         `json:"message"`
	Exception  string         `json:"exception,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ToRecord 转换为序列化形态
func (e *Entry) ToRecord() Record {
	return Record{
		Timestamp:  e.Timestamp,
		Level:      e.Level.String(),
		Category:   e.Category,
		Message:    e.Message,
		Exception:  e.ErrorText(),
		Properties: e.Properties,
	}
}

// PropertiesJSON 属性表的 JSON 文本。属性为空时 ok=false，调用方写 NULL。
// 不可序列化的值以 fmt 文本形式写入。
func (e *Entry) PropertiesJSON() (text string, ok bool) {
	if len(e.Properties) == 0 {
		return "", false
	}
	data, err := json.Marshal(e.Properties)
	if err != nil {
		data, _ = json.Marshal(stringify(e.Properties))
	}
	return string(data), true
}
