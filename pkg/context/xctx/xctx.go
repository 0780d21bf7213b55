package xctx

import "errors"

// contextKey 包私有的 context key 类型，字符串值便于调试时辨认
type contextKey string

var (
	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xctx: nil context")

	// ErrEmptyKey 属性 key 为空
	ErrEmptyKey = errors.New("xctx: empty property key")

	// ErrMissingTraceID trace_id 缺失
	ErrMissingTraceID = errors.New("xctx: missing trace_id")

	// ErrMissingProperty 属性缺失
	ErrMissingProperty = errors.New("xctx: missing property")
)
