package xpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
)

const (
	maxWorkers   = 1 << 16
	maxQueueSize = 1 << 24
)

// Pool 泛型任务池，创建后即开始运行
type Pool[T any] struct {
	handler func(context.Context, T)
	queue   chan T
	opts    options

	// mu 保护 stopped 与向 queue 发送，保证 Shutdown 关闭 queue 后不再有发送
	mu      sync.RWMutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	pending atomic.Int64
	panics  atomic.Uint64
}

// New 创建并启动任务池。handler 收到的 ctx 在 Shutdown 超时后被取消。
func New[T any](workers, queueSize int, handler func(context.Context, T), opts ...Option) (*Pool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if workers < 1 || workers > maxWorkers {
		return nil, fmt.Errorf("%w: got %d, want 1~%d", ErrInvalidWorkers, workers, maxWorkers)
	}
	if queueSize < 1 || queueSize > maxQueueSize {
		return nil, fmt.Errorf("%w: got %d, want 1~%d", ErrInvalidQueueSize, queueSize, maxQueueSize)
	}

	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = xlog.OrDefault(o.logger).With(xlog.Component("xpool"))
	if o.name != "" {
		o.logger = o.logger.With(slog.String("pool", o.name))
	}

	p := &Pool[T]{
		handler: handler,
		queue:   make(chan T, queueSize),
		opts:    o,
		done:    make(chan struct{}),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		p.cancel()
		close(p.done)
	}()
	return p, nil
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
		p.pending.Add(-1)
	}
}

func (p *Pool[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			// 只记录任务类型，任务值可能含敏感内容
			p.opts.logger.Stack(p.ctx, "task panic recovered",
				slog.Any("panic", r), slog.String("task_type", fmt.Sprintf("%T", task)))
		}
	}()
	p.handler(p.ctx, task)
}

// Submit 提交任务，不阻塞
func (p *Pool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.pending.Add(1)
	select {
	case p.queue <- task:
		return nil
	default:
		p.pending.Add(-1)
		return ErrQueueFull
	}
}

// Pending 已提交未完成的任务数
func (p *Pool[T]) Pending() int64 { return p.pending.Load() }

// Panics 恢复的 panic 次数
func (p *Pool[T]) Panics() uint64 { return p.panics.Load() }

// Done 所有 worker 退出后关闭
func (p *Pool[T]) Done() <-chan struct{} { return p.done }

// Shutdown 拒绝新任务并等待队列排空。
//
// ctx 先结束时取消 handler 的 ctx 并返回 ctx 的错误，剩余任务仍会被取出执行，
// 可通过 Done 等待最终完成。重复调用只等待。
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
