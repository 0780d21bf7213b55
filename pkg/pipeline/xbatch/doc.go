// Package xbatch 提供远端 sink 共用的批量缓冲层。
//
// [Sink] 把条目攒成批次交给 [Sender]：缓冲达到 batchSize 时立即发送，
// Flush 发送剩余部分，Close 先 Flush 再按所有权关闭 Sender。
//
// 投递语义为至多一次：发送失败的批次直接丢弃并计入 Stats，不会重新入队。
// 需要重试或熔断时通过 [WithPolicy] 显式开启：
//
//	sink, err := xbatch.New("orders-db", sender,
//	    xbatch.WithBatchSize(200),
//	    xbatch.WithPolicy(xbatch.Policy{
//	        Retry:   &xbatch.RetryConfig{Attempts: 3, Delay: 100 * time.Millisecond},
//	        Breaker: &xbatch.BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second},
//	    }),
//	)
//
// 各个远端目标（SQL、ClickHouse、Redis、HTTP、Kafka、S3）在各自的包里实现 Sender。
package xbatch
