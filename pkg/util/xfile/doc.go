// Package xfile 提供日志文件路径相关的小工具。
//
//   - SanitizePath: 路径格式净化，拒绝空路径、空字节、相对穿越和目录路径
//   - ResolveIn: 把配置中的相对文件名放到日志根目录下，结果不会逃出根目录
//   - EnsureDir: 创建文件的父目录
//
// 路径穿越按路径段精确判断，"app..2024.log" 这类文件名不会被误判。
package xfile
