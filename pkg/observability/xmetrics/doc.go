// Package xmetrics 管线的统一观测接口（metrics + tracing）。
//
// 组件只依赖 Observer/Span/Attr，默认实现基于 OpenTelemetry：
//
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xbatch",
//		Operation: "flush",
//		Kind:      xmetrics.KindProducer,
//		Attrs:     []xmetrics.Attr{xmetrics.Int(xmetrics.AttrBatchSize, n)},
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// 指标见 [NewOTelObserver]，统一属性为 component、operation 与 status。
// 跨度开始时若 ctx 只带 xctx 的追踪标识，会以它为远端父 span。
package xmetrics
