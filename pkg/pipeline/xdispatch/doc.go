// Package xdispatch 是日志管线的异步分发引擎。
//
// 调用方通过 [Logger.Log] 提交条目：级别过滤、补全类别与环境属性后放入队列立即返回，
// 从不阻塞、从不因调用方数据 panic。唯一的 drain goroutine 取出队列，
// 依次写入每个 sink，再交给每个匹配的 handler。
//
// 每次 sink/handler 调用都在独立的恢复边界内执行：返回错误或 panic 只影响这一次调用，
// 记入 [Stats] 并写诊断日志，不会中断后续 sink 或条目。
//
// 生命周期：
//
//	Running -> ShuttingDown -> Stopped
//
// Close 停止接收新条目，等待 drain goroutine 处理完已入队的条目（默认最多 1 秒），
// 然后按顺序 Flush 并 Close 每个 sink。
//
// 基本用法：
//
//	logger, err := xdispatch.New(xdispatch.Config{
//	    MinimumLevel: xlevel.Info,
//	    Sinks:        []xsink.Sink{console},
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close(context.Background())
//
//	logger.Info(ctx, "order created", xdispatch.WithCategory("order"))
package xdispatch
