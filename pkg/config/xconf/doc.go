// Package xconf 管线配置文件的加载、反序列化与热重载，基于 koanf。
//
// # 格式
//
//   - YAML：.yaml, .yml
//   - JSON：.json
//
// # 环境变量展开
//
// [WithEnvExpand] 在解析前对原始字节做 ${VAR} 展开，DSN、密码等敏感值可以不落在配置文件里：
//
//	sinks:
//	  - type: sql
//	    dsn: postgres://logs:${PG_PASSWORD}@db/logs
//
// # 并发
//
// Reload 解析成功后才替换 koanf 实例，解析失败保留旧配置。
// Client 返回的实例在 Reload 后指向旧快照，每次使用时重新获取。
//
// # 监视
//
// [Watch] 监视配置文件所在目录（兼容编辑器先写临时文件再 rename 的保存方式），
// 内置防抖。Stop 之后不会再触发新的回调，已在执行的回调会跑完。
package xconf
