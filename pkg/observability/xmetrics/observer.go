package xmetrics

import (
	"context"
	"strconv"
)

// Kind 跨度类型。远端 sink 的提交是 Client，调度循环的排空是 Internal。
type Kind int

const (
	KindInternal Kind = iota
	KindClient
	KindProducer
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindClient:
		return "Client"
	case KindProducer:
		return "Producer"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Status 观测结果
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Attr 观测属性
type Attr struct {
	Key   string
	Value any
}

// SpanOptions 跨度参数。
//
// Attrs 中 key 为 [AttrBatchSize] 的整数属性同时计入条目计数指标。
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 跨度结果，Status 为空时由 Err 推导
type Result struct {
	Status Status
	Err    error
	Attrs  []Attr
}

// Span 一次观测，End 可重复调用，只有第一次生效
type Span interface {
	End(result Result)
}

// Observer 观测入口
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 不记录任何内容
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

type NoopSpan struct{}

func (NoopSpan) End(Result) {}

// Start 用 observer 开始观测。
//
// 返回值总是非 nil：nil ctx 换成 Background，nil observer 或
// observer 返回的 nil Span 换成 [NoopSpan]。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	next, span := observer.Start(ctx, opts)
	if next == nil {
		next = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return next, span
}
