// Package xhttpsink 把日志批次以 JSON 形式 POST 到 HTTP 端点。
//
// 请求体：
//
//	{"logs":[{"timestamp":...,"level":"Info","message":"..."}, ...]}
//
// 默认异步投递：Send 只负责编码并把请求交给有界的投递池，不等待响应，
// 失败只记诊断日志和计数。池满时 Send 返回错误，由批量层按失败处理。
// Close 等待所有在途请求结束。需要同步确认时使用 [WithSync]。
package xhttpsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xbatch"
	"github.com/omeyang/xlogpipe/pkg/util/xpool"
)

const (
	// DefaultBatchSize HTTP 默认批次大小
	DefaultBatchSize = 10

	// DefaultTimeout 单次请求超时
	DefaultTimeout = 5 * time.Second

	// DefaultConcurrency 异步投递并发数
	DefaultConcurrency = 4

	// DefaultQueueSize 异步投递排队上限（批次数）
	DefaultQueueSize = 64
)

var (
	// ErrInvalidEndpoint 端点不是 http/https URL
	ErrInvalidEndpoint = errors.New("xhttpsink: invalid endpoint")

	// ErrStatus 服务端返回非 2xx
	ErrStatus = errors.New("xhttpsink: unexpected status")
)

type payload struct {
	Logs []xentry.Record `json:"logs"`
}

type config struct {
	timeout time.Duration
	headers map[string]string
	sync    bool
	workers int
	queue   int
	client  *fasthttp.Client
	logger  xlog.Logger
	batch   []xbatch.Option

	// ownsClient 客户端由 NewSender 创建，Close 时释放其连接
	ownsClient bool
}

// Option 配置选项
type Option func(*config)

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeader 追加请求头
func WithHeader(key, value string) Option {
	return func(c *config) { c.headers[key] = value }
}

// WithSync 同步等待响应，失败时 Send 返回错误
func WithSync(enable bool) Option {
	return func(c *config) { c.sync = enable }
}

// WithConcurrency 设置异步投递的并发请求数与排队批次数
func WithConcurrency(workers, queueSize int) Option {
	return func(c *config) {
		if workers > 0 {
			c.workers = workers
		}
		if queueSize > 0 {
			c.queue = queueSize
		}
	}
}

// WithClient 使用外部 fasthttp 客户端，Close 不释放它的连接
func WithClient(client *fasthttp.Client) Option {
	return func(c *config) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger 设置异步失败的诊断日志
func WithLogger(l xlog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithBatch 透传批量层选项
func WithBatch(opts ...xbatch.Option) Option {
	return func(c *config) { c.batch = append(c.batch, opts...) }
}

// Sender HTTP 批量投递
type Sender struct {
	endpoint string
	cfg      config

	pool     *xpool.Pool[delivery]
	failures atomic.Uint64
}

type delivery struct {
	body  []byte
	count int
}

var _ xbatch.Sender = (*Sender)(nil)

// Send 编码批次并投递。异步模式下立即返回。
func (s *Sender) Send(ctx context.Context, batch []*xentry.Entry) error {
	p := payload{Logs: make([]xentry.Record, len(batch))}
	for i, e := range batch {
		p.Logs[i] = e.ToRecord()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("xhttpsink: encode: %w", err)
	}

	if s.cfg.sync {
		return s.post(body)
	}

	if err := s.pool.Submit(delivery{body: body, count: len(p.Logs)}); err != nil {
		return fmt.Errorf("xhttpsink: enqueue %s: %w", s.endpoint, err)
	}
	return nil
}

func (s *Sender) deliver(ctx context.Context, d delivery) {
	if err := s.post(d.body); err != nil {
		s.failures.Add(1)
		xlog.OrDefault(s.cfg.logger).Warn(ctx, "http batch delivery failed",
			xlog.Sink(s.endpoint), xlog.Count(int64(d.count)), xlog.Err(err))
	}
}

func (s *Sender) post(body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	for k, v := range s.cfg.headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	if err := s.cfg.client.DoTimeout(req, resp, s.cfg.timeout); err != nil {
		return fmt.Errorf("xhttpsink: post %s: %w", s.endpoint, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("%w: %d from %s", ErrStatus, code, s.endpoint)
	}
	return nil
}

// Failures 异步投递失败次数
func (s *Sender) Failures() uint64 { return s.failures.Load() }

// InFlight 已提交未完成的异步请求数
func (s *Sender) InFlight() int64 {
	if s.pool == nil {
		return 0
	}
	return s.pool.Pending()
}

// Close 等待在途请求。每个请求都受超时约束，等待是有界的。
// 只释放自建客户端的空闲连接，[WithClient] 传入的客户端保持可用。
func (s *Sender) Close() error {
	var err error
	if s.pool != nil {
		err = s.pool.Shutdown(context.Background())
	}
	if s.cfg.ownsClient {
		s.cfg.client.CloseIdleConnections()
	}
	return err
}

// NewSender 创建 Sender
func NewSender(endpoint string, opts ...Option) (*Sender, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	cfg := config{
		timeout: DefaultTimeout,
		headers: make(map[string]string),
		workers: DefaultConcurrency,
		queue:   DefaultQueueSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.client == nil {
		cfg.client = &fasthttp.Client{
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: 10 * time.Second,
			ReadTimeout:         cfg.timeout,
			WriteTimeout:        cfg.timeout,
		}
		cfg.ownsClient = true
	}
	s := &Sender{endpoint: endpoint, cfg: cfg}
	if !cfg.sync {
		s.pool, err = xpool.New(cfg.workers, cfg.queue, s.deliver,
			xpool.WithName("http:"+endpoint), xpool.WithLogger(cfg.logger))
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// New 创建 HTTP sink，默认批次 10 条。
//
// Sender 由 sink 独占，sink 关闭时总会关闭它的投递池，
// 忽略 [xbatch.WithOwnership]。外部客户端是否释放由 [WithClient] 决定。
func New(endpoint string, opts ...Option) (*xbatch.Sink, error) {
	sender, err := NewSender(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	batch := append([]xbatch.Option{xbatch.WithBatchSize(DefaultBatchSize)}, sender.cfg.batch...)
	batch = append(batch, xbatch.WithOwnership(true))
	sink, err := xbatch.New("http:"+endpoint, sender, batch...)
	if err != nil {
		return nil, errors.Join(err, sender.Close())
	}
	return sink, nil
}
