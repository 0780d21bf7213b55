// Package xrun 基于 errgroup 的进程生命周期管理。
//
// 命令行管线进程由若干服务组成（读取输入、配置热重载、统计输出），
// 任一服务失败或收到 SIGINT/SIGTERM 时全部服务通过 ctx 取消协同退出：
//
//	err := xrun.Run(ctx, readStdin, watchConfig, xrun.Ticker(time.Minute, false, reportStats))
//	if errors.Is(err, xrun.ErrSignal) {
//		// 正常信号退出
//	}
//
// Wait 只返回第一个错误；显式 Cancel(cause) 的 cause 优先于 context.Canceled。
//
// [errgroup]: https://pkg.go.dev/golang.org/x/sync/errgroup
package xrun
