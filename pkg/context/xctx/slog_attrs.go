package xctx

import (
	"context"
	"log/slog"
	"sort"
)

// AppendTraceAttrs 将 context 中的追踪信息追加到现有切片，只追加非空字段。
func AppendTraceAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	if v := TraceID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTraceID, v))
	}
	if v := SpanID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeySpanID, v))
	}
	if v := RequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyRequestID, v))
	}
	if v := TraceFlags(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTraceFlags, v))
	}
	return attrs
}

// AppendPropertyAttrs 将 context 中的属性按 key 排序后追加到切片
func AppendPropertyAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	m := bagFrom(ctx)
	if len(m) == 0 {
		return attrs
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, m[k]))
	}
	return attrs
}
