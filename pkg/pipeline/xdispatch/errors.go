package xdispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrPanic sink 或 handler 发生 panic，经恢复后以 *PanicError 返回
	ErrPanic = errors.New("xdispatch: panic recovered")

	// ErrNilSink Config.Sinks 中含 nil
	ErrNilSink = errors.New("xdispatch: nil sink")

	// ErrNilHandler Config.Handlers 中含 nil
	ErrNilHandler = errors.New("xdispatch: nil handler")

	// ErrInvalidSchedule flush 计划表达式无法解析
	ErrInvalidSchedule = errors.New("xdispatch: invalid flush schedule")

	// ErrCloseTimeout 关闭时 drain goroutine 未在期限内结束
	ErrCloseTimeout = errors.New("xdispatch: drain did not finish before close timeout")
)

// PanicError 恢复的 panic 值与调用栈
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("xdispatch: panic recovered: %v", e.Value)
}

// Unwrap 使 errors.Is(err, ErrPanic) 成立；panic 值本身是 error 时一并暴露
func (e *PanicError) Unwrap() []error {
	if err, ok := e.Value.(error); ok {
		return []error{ErrPanic, err}
	}
	return []error{ErrPanic}
}
