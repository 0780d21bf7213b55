// Package xpool 提供固定 worker 数、有界队列的泛型任务池。
//
// 远端 sink 的异步投递用它限制并发：Submit 永不阻塞，队列满时返回 [ErrQueueFull]，
// 由调用方决定丢弃还是降级为同步。Shutdown 先拒绝新任务，再等待队列排空。
//
// 单个任务 panic 会被恢复并记录调用栈，不影响其他任务。
// Shutdown 不可在 handler 内调用，否则会死锁。
package xpool
