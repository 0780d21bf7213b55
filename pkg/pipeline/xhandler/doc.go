// Package xhandler 提供 dispatch 引擎使用的副作用处理器。
//
// Handler 与 Sink 的区别在于它带谓词：只有 ShouldHandle 返回 true 的条目才会交给 Handle。
// 内置实现：
//
//   - [Action]：函数加可选谓词
//   - [Threshold]：在其他 handler 之前加级别阈值
//   - [Mail]：达到阈值时发送 SMTP 通知
//
// 级别阈值：预定义阈值按数值比较且只匹配预定义级别，自定义阈值只匹配同一级别。
package xhandler
