// Package xentry 定义日志条目以及内置的文本/JSON 格式化器。
//
// 格式化器只负责把条目渲染成一行字符串；写入哪里、何时换行由 sink 决定。
// 远端 sink 统一使用 [Record] 作为序列化形态：
//
//	timestamp, level, category, message, exception, properties
package xentry
