package xdispatch

import (
	"maps"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
)

// EntryOption 在提交前补充条目字段
type EntryOption func(*xentry.Entry)

// WithCategory 覆盖默认类别
func WithCategory(category string) EntryOption {
	return func(e *xentry.Entry) { e.Category = category }
}

// WithError 附带异常
func WithError(err error) EntryOption {
	return func(e *xentry.Entry) { e.Err = err }
}

// WithProperty 设置单个属性
func WithProperty(key string, value any) EntryOption {
	return func(e *xentry.Entry) { e.SetProperty(key, value) }
}

// WithProperties 合并一组属性，同名键后者覆盖。props 会被复制。
func WithProperties(props map[string]any) EntryOption {
	return func(e *xentry.Entry) {
		if len(props) == 0 {
			return
		}
		if e.Properties == nil {
			e.Properties = make(map[string]any, len(props))
		}
		maps.Copy(e.Properties, props)
	}
}
