package xctx

import "context"

// Detach 返回供独立执行单元使用的 context。
//
// 属性集合与追踪字段都被清空，取消信号和截止时间保留。
// 独立启动的 goroutine 应从 Detach 的结果开始，而不是直接沿用调用方的 ctx。
func Detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if bagFrom(ctx) != nil {
		ctx = context.WithValue(ctx, keyProperties, &propertyBag{})
	}
	for _, k := range traceKeys {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			ctx = context.WithValue(ctx, k, "")
		}
	}
	return ctx
}

// Go 以 Detach(ctx) 启动一个独立 goroutine，返回的 channel 在 fn 结束后关闭
func Go(ctx context.Context, fn func(ctx context.Context)) <-chan struct{} {
	return GoWith(ctx, nil, fn)
}

// GoWith 与 Go 相同，但用 seed（通常是 Properties 的快照）初始化子单元的属性
func GoWith(ctx context.Context, seed map[string]any, fn func(ctx context.Context)) <-chan struct{} {
	child := Detach(ctx)
	if len(seed) > 0 {
		// child 非 nil，WithProperties 不会失败
		child, _ = WithProperties(child, seed)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(child)
	}()
	return done
}

// WithScope 在附加了 props 的派生 context 中执行 fn。
// fn 返回后调用方的 ctx 仍是原来的属性集合，不需要手动恢复。
func WithScope(ctx context.Context, props map[string]any, fn func(ctx context.Context) error) error {
	scoped, err := WithProperties(ctx, props)
	if err != nil {
		return err
	}
	return fn(scoped)
}
