// Package xkafkasink 把日志批次写入 Kafka 主题。
//
// 每个批次对应一次 WriteMessages 调用，消息体为 JSON 序列化的 xentry.Record，
// 消息 key 为条目类别，同一类别落在同一分区，保持类别内的顺序。
package xkafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xbatch"
)

var (
	// ErrNilWriter 未提供 writer
	ErrNilWriter = errors.New("xkafkasink: nil writer")

	// ErrNoBrokers 未配置 broker
	ErrNoBrokers = errors.New("xkafkasink: no brokers")

	// ErrNoTopic 未配置主题
	ErrNoTopic = errors.New("xkafkasink: no topic")
)

// MessageWriter *kafka.Writer 满足的最小接口
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender Kafka 批量写入
type Sender struct {
	writer MessageWriter
	topic  string
}

var _ xbatch.Sender = (*Sender)(nil)

// NewSender 创建 Sender，topic 只用于命名
func NewSender(w MessageWriter, topic string) (*Sender, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	return &Sender{writer: w, topic: topic}, nil
}

// Send 一次写入整个批次
func (s *Sender) Send(ctx context.Context, batch []*xentry.Entry) error {
	msgs := make([]kafka.Message, len(batch))
	for i, e := range batch {
		value, err := json.Marshal(e.ToRecord())
		if err != nil {
			return fmt.Errorf("xkafkasink: encode entry %d: %w", i, err)
		}
		msgs[i] = kafka.Message{
			Value: value,
			Time:  e.Timestamp,
			Headers: []kafka.Header{
				{Key: "level", Value: []byte(e.Level.String())},
			},
		}
		if e.Category != "" {
			msgs[i].Key = []byte(e.Category)
		}
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("xkafkasink: write %d messages to %s: %w", len(msgs), s.topic, err)
	}
	return nil
}

// Close 关闭 writer，只在 Sink 拥有 writer 时被调用
func (s *Sender) Close() error {
	return s.writer.Close()
}

// WriterConfig 创建 kafka-go Writer 的参数
type WriterConfig struct {
	Brokers      []string      `koanf:"brokers"`
	Topic        string        `koanf:"topic"`
	RequiredAcks string        `koanf:"required_acks"`
	BatchTimeout time.Duration `koanf:"batch_timeout"`
	Compression  string        `koanf:"compression"`
}

// NewWriter 按配置创建 *kafka.Writer。
// RequiredAcks: none/one/all，默认 all；Compression: gzip/snappy/lz4/zstd，默认不压缩。
func NewWriter(cfg WriterConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, ErrNoTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	if cfg.BatchTimeout > 0 {
		w.BatchTimeout = cfg.BatchTimeout
	}
	switch strings.ToLower(cfg.RequiredAcks) {
	case "", "all":
	case "one":
		w.RequiredAcks = kafka.RequireOne
	case "none":
		w.RequiredAcks = kafka.RequireNone
	default:
		return nil, fmt.Errorf("xkafkasink: unknown required_acks %q", cfg.RequiredAcks)
	}
	switch strings.ToLower(cfg.Compression) {
	case "", "none":
	case "gzip":
		w.Compression = kafka.Gzip
	case "snappy":
		w.Compression = kafka.Snappy
	case "lz4":
		w.Compression = kafka.Lz4
	case "zstd":
		w.Compression = kafka.Zstd
	default:
		return nil, fmt.Errorf("xkafkasink: unknown compression %q", cfg.Compression)
	}
	return w, nil
}

// New 使用已有 writer 创建 sink，默认不关闭 writer
func New(w MessageWriter, topic string, opts ...xbatch.Option) (*xbatch.Sink, error) {
	return newSink(w, topic, false, opts)
}

// Open 按配置创建 writer 与 sink，sink 关闭时关闭 writer
func Open(cfg WriterConfig, opts ...xbatch.Option) (*xbatch.Sink, error) {
	w, err := NewWriter(cfg)
	if err != nil {
		return nil, err
	}
	sink, err := newSink(w, cfg.Topic, true, opts)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return sink, nil
}

func newSink(w MessageWriter, topic string, owned bool, opts []xbatch.Option) (*xbatch.Sink, error) {
	sender, err := NewSender(w, topic)
	if err != nil {
		return nil, err
	}
	batch := append([]xbatch.Option{xbatch.WithOwnership(owned)}, opts...)
	return xbatch.New("kafka:"+topic, sender, batch...)
}
