// Package xsink 日志输出目标（sink）接口与内置实现。
//
//   - [Console]：标准输出/错误，终端下按级别着色
//   - [Writer]：任意 io.Writer + 格式化器
//   - [Func]：由函数组成，便于测试与快速接入
//   - [Rolling]：按大小/日期轮转的文件
//
// 批量远端 sink 见 xbatch 及其变体包。
package xsink
