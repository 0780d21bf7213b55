package xhandler

import (
	"context"
	"errors"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
)

var (
	// ErrNilAction Action 缺少处理函数
	ErrNilAction = errors.New("xhandler: nil action")

	// ErrNilHandler Threshold 包装的 handler 为 nil
	ErrNilHandler = errors.New("xhandler: nil handler")
)

// Handler 带谓词的副作用处理器。
//
// dispatch 只在 ShouldHandle 返回 true 时调用 Handle，两者都在 drain goroutine 上执行。
type Handler interface {
	ShouldHandle(e *xentry.Entry) bool
	Handle(ctx context.Context, e *xentry.Entry) error
}

// Predicate 条目谓词
type Predicate func(e *xentry.Entry) bool

// Action 由函数与可选谓词组成的 handler，谓词为空时总是匹配
type Action struct {
	name      string
	fn        func(ctx context.Context, e *xentry.Entry) error
	predicate Predicate
}

// NewAction 创建 Action handler
func NewAction(name string, fn func(ctx context.Context, e *xentry.Entry) error, predicate Predicate) (*Action, error) {
	if fn == nil {
		return nil, ErrNilAction
	}
	return &Action{name: name, fn: fn, predicate: predicate}, nil
}

func (a *Action) Name() string { return a.name }

func (a *Action) ShouldHandle(e *xentry.Entry) bool {
	if a.predicate == nil {
		return true
	}
	return a.predicate(e)
}

func (a *Action) Handle(ctx context.Context, e *xentry.Entry) error {
	return a.fn(ctx, e)
}

// MatchLevel 阈值匹配规则：
// 阈值为预定义级别时，条目也须是预定义级别且不低于阈值；
// 阈值为自定义级别时只匹配同一级别。
func MatchLevel(threshold xlevel.Level, e *xentry.Entry) bool {
	if threshold.IsPredefined() {
		return e.Level.IsPredefined() && xlevel.Compare(e.Level, threshold) >= 0
	}
	return e.Level.Equal(threshold)
}

// Threshold 在内层 handler 的谓词之前加一道级别阈值
type Threshold struct {
	level xlevel.Level
	inner Handler
}

// NewThreshold 包装 inner
func NewThreshold(level xlevel.Level, inner Handler) (*Threshold, error) {
	if inner == nil {
		return nil, ErrNilHandler
	}
	return &Threshold{level: level, inner: inner}, nil
}

func (t *Threshold) ShouldHandle(e *xentry.Entry) bool {
	return MatchLevel(t.level, e) && t.inner.ShouldHandle(e)
}

func (t *Threshold) Handle(ctx context.Context, e *xentry.Entry) error {
	return t.inner.Handle(ctx, e)
}
