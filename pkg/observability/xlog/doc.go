// Package xlog 管线自身的诊断日志，基于 log/slog。
//
// sink 写入失败、handler panic、轮转出错、关停超时等内部事件都经由 xlog 输出，
// 不会回流到被处理的日志条目中。
//
// # 创建 Logger
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("warning").
//		SetFormat("json").
//		SetRotation("/var/log/xlogpipe/diag.log", xrotate.WithMaxSize(50)).
//		Build()
//	defer cleanup()
//
// Builder 为 first-error-wins，第一个配置错误在 Build 时返回。
//
// # Enrich
//
// 默认启用 [EnrichHandler]：从 context 注入 trace_id/span_id/request_id/trace_flags，
// 以及 xctx 环境属性（按 key 排序）。
//
// # 级别
//
// [ParseLevel] 同时接受 slog 风格与管线级别名，trace 映射为 debug，fatal 映射为 error。
package xlog
