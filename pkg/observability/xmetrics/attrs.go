package xmetrics

import "time"

// 管线组件常用的属性 key
const (
	AttrSink      = "sink"
	AttrLogger    = "logger"
	AttrBatchSize = "batch.size"
)

func String(key, value string) Attr {
	return Attr{Key: key, Value: value}
}

func Bool(key string, value bool) Attr {
	return Attr{Key: key, Value: value}
}

func Int(key string, value int) Attr {
	return Attr{Key: key, Value: value}
}

func Int64(key string, value int64) Attr {
	return Attr{Key: key, Value: value}
}

func Uint64(key string, value uint64) Attr {
	return Attr{Key: key, Value: value}
}

func Float64(key string, value float64) Attr {
	return Attr{Key: key, Value: value}
}

func Any(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Duration 在 OTel 中以毫秒整数记录，key 建议带单位，如 "wait_ms"
func Duration(key string, value time.Duration) Attr {
	return Attr{Key: key, Value: value}
}
