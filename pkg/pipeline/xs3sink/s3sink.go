// Package xs3sink 把每个日志批次写成 S3 上的一个 NDJSON 对象。
//
// 对象键：
//
//	{prefix}/{yyyy}/{MM}/{dd}/{HHmmss}-{seq}-{token}.ndjson[.gz|.zst]
//
// 日期取批次首条目的时间戳（UTC），token 为实例级随机标识，seq 为实例内递增序号。
package xs3sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xbatch"
)

// Compression 对象压缩方式
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

var (
	// ErrNilClient 未提供客户端
	ErrNilClient = errors.New("xs3sink: nil client")

	// ErrNoBucket 未配置 bucket
	ErrNoBucket = errors.New("xs3sink: no bucket")

	// ErrInvalidCompression 未知压缩方式
	ErrInvalidCompression = errors.New("xs3sink: invalid compression")
)

// ParseCompression 解析压缩方式，空字符串为 none
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionZstd:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCompression, s)
	}
}

// PutObjectAPI *s3.Client 满足的最小接口
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Sender S3 批量写入
type Sender struct {
	client      PutObjectAPI
	bucket      string
	prefix      string
	compression Compression
	token       string
	seq         atomic.Uint64
	zenc        *zstd.Encoder
}

var _ xbatch.Sender = (*Sender)(nil)

// NewSender 创建 Sender
func NewSender(client PutObjectAPI, bucket, prefix string, compression Compression) (*Sender, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if bucket == "" {
		return nil, ErrNoBucket
	}
	c, err := ParseCompression(string(compression))
	if err != nil {
		return nil, err
	}
	s := &Sender{
		client:      client,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		compression: c,
		token:       uuid.NewString()[:8],
	}
	if c == CompressionZstd {
		// nil writer 只用于 EncodeAll，不启动后台 goroutine
		s.zenc, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("xs3sink: zstd encoder: %w", err)
		}
	}
	return s, nil
}

// Send 把批次编码为一个对象上传
func (s *Sender) Send(ctx context.Context, batch []*xentry.Entry) error {
	if len(batch) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, e := range batch {
		if err := enc.Encode(e.ToRecord()); err != nil {
			return fmt.Errorf("xs3sink: encode entry %d: %w", i, err)
		}
	}

	body, encoding, err := s.compress(buf.Bytes())
	if err != nil {
		return err
	}
	key := s.objectKey(batch[0])
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	}
	if encoding != "" {
		in.ContentEncoding = aws.String(encoding)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("xs3sink: put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *Sender) compress(data []byte) (body []byte, encoding string, err error) {
	switch s.compression {
	case CompressionGzip:
		var out bytes.Buffer
		zw := gzip.NewWriter(&out)
		if _, err := zw.Write(data); err != nil {
			return nil, "", fmt.Errorf("xs3sink: gzip: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, "", fmt.Errorf("xs3sink: gzip: %w", err)
		}
		return out.Bytes(), "gzip", nil
	case CompressionZstd:
		return s.zenc.EncodeAll(data, make([]byte, 0, len(data)/2)), "zstd", nil
	default:
		return data, "", nil
	}
}

func (s *Sender) objectKey(first *xentry.Entry) string {
	ts := first.Timestamp.UTC()
	name := fmt.Sprintf("%s/%s-%06d-%s.ndjson%s",
		ts.Format("2006/01/02"), ts.Format("150405"), s.seq.Add(1), s.token, s.extension())
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *Sender) extension() string {
	switch s.compression {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// Close 释放 zstd 编码器
func (s *Sender) Close() error {
	if s.zenc != nil {
		return s.zenc.Close()
	}
	return nil
}

// ClientConfig 创建 S3 客户端的参数，Endpoint 非空时用于 MinIO/LocalStack
type ClientConfig struct {
	Region       string `koanf:"region"`
	Endpoint     string `koanf:"endpoint"`
	AccessKey    string `koanf:"access_key"`
	SecretKey    string `koanf:"secret_key"`
	SessionToken string `koanf:"session_token"`
	PathStyle    bool   `koanf:"path_style"`
}

// NewClient 按配置创建 *s3.Client，未提供静态凭证时使用默认凭证链
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	var loaders []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loaders = append(loaders, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("xs3sink: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// New 创建 sink。Sender 持有的 zstd 编码器随 sink 关闭释放。
func New(client PutObjectAPI, bucket, prefix string, compression Compression, opts ...xbatch.Option) (*xbatch.Sink, error) {
	sender, err := NewSender(client, bucket, prefix, compression)
	if err != nil {
		return nil, err
	}
	name := "s3:" + bucket
	if sender.prefix != "" {
		name += "/" + sender.prefix
	}
	batch := append([]xbatch.Option{xbatch.WithOwnership(true)}, opts...)
	return xbatch.New(name, sender, batch...)
}
