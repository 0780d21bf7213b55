// Package observability 日志条目模型与管线自身的可观测性。
//
// 子包列表：
//   - xlevel: 日志级别，内置六级并支持自定义数值级别
//   - xentry: 日志条目与文本/JSON 格式化
//   - xlog: 管线诊断日志，基于 log/slog
//   - xmetrics: 统一观测接口，默认基于 OpenTelemetry
//   - xrotate: 文件轮转（分代轮转与 lumberjack）
package observability
