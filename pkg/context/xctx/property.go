package xctx

import (
	"context"
	"fmt"
	"maps"
)

const keyProperties = contextKey("xctx:properties")

// propertyBag 不可变属性集合。每次写入都复制一份新 map 挂到派生 context 上，
// 父 context 看到的集合永远不变。
type propertyBag struct {
	m map[string]any
}

func bagFrom(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	if b, ok := ctx.Value(keyProperties).(*propertyBag); ok && b != nil {
		return b.m
	}
	return nil
}

// WithProperty 返回带有 key=value 属性的派生 context
//
// 父 context 不受影响（copy-on-write）。同名 key 被覆盖。
// ctx 为 nil 返回 ErrNilContext，key 为空返回 ErrEmptyKey。
func WithProperty(ctx context.Context, key string, value any) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if key == "" {
		return nil, ErrEmptyKey
	}
	old := bagFrom(ctx)
	m := make(map[string]any, len(old)+1)
	maps.Copy(m, old)
	m[key] = value
	return context.WithValue(ctx, keyProperties, &propertyBag{m: m}), nil
}

// WithProperties 批量写入属性，常用于把 Properties 的快照恢复到新的执行单元。
// 空 key 被跳过。
func WithProperties(ctx context.Context, props map[string]any) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(props) == 0 {
		return ctx, nil
	}
	old := bagFrom(ctx)
	m := make(map[string]any, len(old)+len(props))
	maps.Copy(m, old)
	for k, v := range props {
		if k == "" {
			continue
		}
		m[k] = v
	}
	return context.WithValue(ctx, keyProperties, &propertyBag{m: m}), nil
}

// WithoutProperties 返回属性集合为空的派生 context（clear 语义）。
// 追踪字段保留。
func WithoutProperties(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if bagFrom(ctx) == nil {
		return ctx, nil
	}
	return context.WithValue(ctx, keyProperties, &propertyBag{}), nil
}

// Property 读取属性，不存在返回 (nil, false)
func Property(ctx context.Context, key string) (any, bool) {
	v, ok := bagFrom(ctx)[key]
	return v, ok
}

// RequireProperty 读取属性，不存在返回 ErrMissingProperty
func RequireProperty(ctx context.Context, key string) (any, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	v, ok := Property(ctx, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingProperty, key)
	}
	return v, nil
}

// Properties 返回当前属性的快照副本，修改返回值不影响 context。
// 没有属性时返回 nil。
func Properties(ctx context.Context) map[string]any {
	m := bagFrom(ctx)
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}

// Enrich 把 context 中的属性和追踪字段合并进 props，已存在的 key 不覆盖。
//
// props 为 nil 且有内容需要合并时会新建 map，返回合并后的 map。
func Enrich(ctx context.Context, props map[string]any) map[string]any {
	if ctx == nil {
		return props
	}
	put := func(k string, v any) {
		if props == nil {
			props = make(map[string]any)
		}
		if _, exists := props[k]; !exists {
			props[k] = v
		}
	}
	for k, v := range bagFrom(ctx) {
		put(k, v)
	}
	if v := TraceID(ctx); v != "" {
		put(KeyTraceID, v)
	}
	if v := SpanID(ctx); v != "" {
		put(KeySpanID, v)
	}
	if v := RequestID(ctx); v != "" {
		put(KeyRequestID, v)
	}
	return props
}
