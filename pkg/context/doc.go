// Package context 管线的环境上下文。
//
// 子包列表：
//   - xctx: 追踪标识与环境属性的注入/提取，条目入队时据此补全 Properties
package context
