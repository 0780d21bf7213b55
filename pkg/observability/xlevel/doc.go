// Package xlevel 定义日志管道的级别模型。
//
// 级别是一个显式的标签变体：预定义级别（Trace=0 .. None=6）或自定义级别
// （任意整数值 + 名称）。两者共享同一个整数投影，比较与过滤只看该整数：
//
//	audit := xlevel.MustCustom(15, "Audit")
//	xlevel.AtLeast(xlevel.Info, audit)  // false: 2 < 15
//	xlevel.AtLeast(audit, xlevel.Error) // true: 15 >= 4
//
// 零值 Level{} 没有整数投影，[AtLeast] 对其放行（fail-open）。
//
// 配置文件中的自定义级别需要先通过 [Register] 注册，之后
// [ParseLevel] 与 UnmarshalText 才能按名称解析。
package xlevel
