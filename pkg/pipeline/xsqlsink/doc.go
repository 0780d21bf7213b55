// Package xsqlsink 把日志批量写入 SQL 表。
//
// 每个批次在一个事务里逐行插入，任意一行失败整批回滚。表结构：
//
//	Timestamp, Level, Category, Message, Exception, Properties
//
// Category/Exception 为空时写 NULL，Properties 为 JSON 文本或 NULL。
// 默认使用 lib/pq 驱动，其他驱动通过 [New] 传入已打开的 *sqlx.DB。
package xsqlsink
