// Package xrotate 提供日志文件轮转功能。
//
// Rotator 接口定义了轮转器的核心行为（Write/Close/Rotate），所有实现并发安全。
//
// # 当前实现
//
//   - [NewGenerational]: 按大小与日期的分代轮转，日志管道的文件 sink 使用它
//   - [NewLumberjack]: 基于 lumberjack v2 的按大小轮转，内部诊断日志使用它
//
// # 分代轮转
//
// 活动文件写满后依次后移已有分代（.1 -> .2 ...），活动文件改名为 .1，
// 超过上限的那一代被删除。启用按日期轮转时，文件名中带有日期与会话标识：
//
//	app.2024-03-09.1a2b3c4d.log      活动文件
//	app.2024-03-09.1a2b3c4d.1.log    第 1 代
//
// 日期由写入数据的时间戳决定（[Generational.WriteAt]），不看墙上时钟；
// 时间戳倒退也会触发一次日期切换。会话标识区分并发写同一路径的多个进程。
package xrotate
