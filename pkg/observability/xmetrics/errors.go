package xmetrics

import "errors"

var (
	// ErrInstrument 创建 OTel 仪表失败
	ErrInstrument = errors.New("xmetrics: create instrument failed")

	ErrInvalidBuckets = errors.New("xmetrics: invalid histogram buckets")
	ErrNilOption      = errors.New("xmetrics: nil option")
)
