package xctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

const (
	// TraceIDSize W3C 规范: 128-bit (16 bytes) -> 32 hex chars
	TraceIDSize = 16

	// SpanIDSize W3C 规范: 64-bit (8 bytes) -> 16 hex chars
	SpanIDSize = 8
)

// Trace Key 常量，遵循 OpenTelemetry 语义约定（下划线分隔）
const (
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
	KeyRequestID  = "request_id"
	KeyTraceFlags = "trace_flags"
)

const (
	keyTraceID    = contextKey("xctx:trace_id")
	keySpanID     = contextKey("xctx:span_id")
	keyRequestID  = contextKey("xctx:request_id")
	keyTraceFlags = contextKey("xctx:trace_flags")
)

var traceKeys = [...]contextKey{keyTraceID, keySpanID, keyRequestID, keyTraceFlags}

func withString(ctx context.Context, key contextKey, v string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, key, v), nil
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithTraceID 将 trace ID 注入 context，ctx 为 nil 返回 ErrNilContext
func WithTraceID(ctx context.Context, traceID string) (context.Context, error) {
	return withString(ctx, keyTraceID, traceID)
}

// TraceID 从 context 提取 trace ID，不存在返回空字符串
func TraceID(ctx context.Context) string { return stringValue(ctx, keyTraceID) }

// RequireTraceID 从 context 获取 trace ID，不存在返回 ErrMissingTraceID
func RequireTraceID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	v := TraceID(ctx)
	if v == "" {
		return "", ErrMissingTraceID
	}
	return v, nil
}

// WithSpanID 将 span ID 注入 context
func WithSpanID(ctx context.Context, spanID string) (context.Context, error) {
	return withString(ctx, keySpanID, spanID)
}

// SpanID 从 context 提取 span ID
func SpanID(ctx context.Context) string { return stringValue(ctx, keySpanID) }

// WithRequestID 将 request ID 注入 context
func WithRequestID(ctx context.Context, requestID string) (context.Context, error) {
	return withString(ctx, keyRequestID, requestID)
}

// RequestID 从 context 提取 request ID
func RequestID(ctx context.Context) string { return stringValue(ctx, keyRequestID) }

// WithTraceFlags 注入 W3C trace-flags（2 位十六进制，如 "01"）
func WithTraceFlags(ctx context.Context, flags string) (context.Context, error) {
	return withString(ctx, keyTraceFlags, flags)
}

// TraceFlags 从 context 提取 trace flags
func TraceFlags(ctx context.Context) string { return stringValue(ctx, keyTraceFlags) }

// GenerateTraceID 生成 32 位小写十六进制 TraceID，W3C 规范禁止全零。
// 熵源不可用时 panic。
func GenerateTraceID() string {
	return randomHex(TraceIDSize)
}

// GenerateSpanID 生成 16 位小写十六进制 SpanID
func GenerateSpanID() string {
	return randomHex(SpanIDSize)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	for {
		if _, err := rand.Read(buf); err != nil {
			panic("xctx: crypto/rand.Read failed: " + err.Error())
		}
		for _, b := range buf {
			if b != 0 {
				return hex.EncodeToString(buf)
			}
		}
	}
}

// EnsureTraceID 确保 context 中存在 TraceID，已有则原样返回
func EnsureTraceID(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if TraceID(ctx) != "" {
		return ctx, nil
	}
	return WithTraceID(ctx, GenerateTraceID())
}
