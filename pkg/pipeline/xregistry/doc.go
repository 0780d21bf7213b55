// Package xregistry 按名称管理 xdispatch.Logger，并从声明式配置构建管线。
//
// 配置文件示例（YAML）：
//
//	log_dir: /var/log/app
//	loggers:
//	  orders:
//	    minimum_level: Info
//	    default_category: orders
//	    sinks:
//	      - type: console
//	      - type: rolling
//	        format: json
//	        rolling:
//	          path: orders.log
//	          max_file_size: 10485760
//	          daily: true
//	      - type: redis
//	        redis:
//	          url: redis://localhost:6379/0
//	          key: logs:orders
//	        batch:
//	          size: 50
//	          retry:
//	            attempts: 3
//	      - type: http
//	        http:
//	          endpoint: https://logs.example.com/ingest
//	          concurrency: 2
//	          queue_size: 32
//	    handlers:
//	      - type: mail
//	        mail:
//	          host: smtp.example.com
//	          from: alert@example.com
//	          to: [ops@example.com]
//	          level: Error
//
// [LoadAndWatch] 加载该文件、创建其中的 logger，并在文件变更后重建。
package xregistry
