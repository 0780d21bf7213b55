// Package xctx 提供基于 context.Context 的环境上下文（ambient context）。
//
// 日志管道需要"当前执行流"的键值属性（如 UserId、OrderId），在创建日志条目时
// 自动合并进去。xctx 用显式的 context 传递实现这一点，而不是进程级全局变量：
//
//   - 属性随 ctx 沿调用链向下传播，同一执行流内的同步/异步调用都能看到
//   - 每次写入都派生新的 ctx（copy-on-write），父 ctx 不受影响
//   - 独立启动的并发单元应从 [Detach] 的结果开始，看不到父单元的属性；
//     需要继承时显式用 [GoWith] 传入 [Properties] 快照
//
// # 命名约定
//
//	WithXxx(ctx, value)    - 注入：返回派生 ctx
//	Xxx(ctx)               - 读取：缺失时返回零值
//	RequireXxx(ctx)        - 强制读取：缺失时返回错误
//	EnsureXxx(ctx)         - 确保存在：若已存在则返回，否则自动生成
//
// # 合并规则
//
// [Enrich] 把属性与追踪字段（trace_id/span_id/request_id）合并进条目的属性表，
// 条目上已经存在的 key 不会被覆盖。
package xctx
