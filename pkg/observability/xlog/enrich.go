package xlog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/omeyang/xlogpipe/pkg/context/xctx"
)

// ErrNilHandler NewEnrichHandler 的 base 为 nil
var ErrNilHandler = errors.New("xlog: base handler is nil")

// EnrichHandler 在 Handle 时从 context 注入追踪字段与环境属性。
//
// 注入顺序：trace_id/span_id/request_id/trace_flags 在前，环境属性按 key 排序在后。
// context 缺字段时不注入，不影响记录本身。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 包装 base。调用 WithGroup 后注入字段同样归入该分组。
func NewEnrichHandler(base slog.Handler) (*EnrichHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &EnrichHandler{base: base}, nil
}

func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// 栈上预留的属性数量，超出时 append 自动扩容
const enrichAttrsHint = 8

// Handle 按 slog 契约先 Clone 再追加属性
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf [enrichAttrsHint]slog.Attr
	attrs := buf[:0]
	attrs = xctx.AppendTraceAttrs(attrs, ctx)
	attrs = xctx.AppendPropertyAttrs(attrs, ctx)

	if len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.base.Handle(ctx, r)
}

func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
