// Package util 通用工具子包。
//
// 子包列表：
//   - xfile: 日志路径规范化与目录创建
//   - xpool: 有界队列的泛型任务池，远端 sink 异步投递使用
package util
