package xpool

import "errors"

var (
	ErrNilHandler = errors.New("xpool: nil handler")

	// ErrPoolStopped 已调用 Shutdown
	ErrPoolStopped = errors.New("xpool: pool is stopped")

	ErrQueueFull = errors.New("xpool: queue is full")

	ErrInvalidWorkers   = errors.New("xpool: invalid worker count")
	ErrInvalidQueueSize = errors.New("xpool: invalid queue size")
)
