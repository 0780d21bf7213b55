package xregistry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/observability/xmetrics"
	"github.com/omeyang/xlogpipe/pkg/observability/xrotate"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xbatch"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xchsink"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xdispatch"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xhandler"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xhttpsink"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xkafkasink"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xredissink"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xs3sink"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xsink"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xsqlsink"
	"github.com/omeyang/xlogpipe/pkg/util/xfile"
)

// 配置错误
var (
	ErrUnknownSink    = errors.New("xregistry: unknown sink type")
	ErrUnknownHandler = errors.New("xregistry: unknown handler type")
	ErrMissingSection = errors.New("xregistry: missing sink section")
	ErrInvalidLevel   = errors.New("xregistry: invalid level")
)

// FileConfig 配置文件根节点
type FileConfig struct {
	// LogDir 相对路径的 file/rolling sink 以它为根，不得逃出
	LogDir  string                    `koanf:"log_dir"`
	Loggers map[string]PipelineConfig `koanf:"loggers"`
}

// PipelineConfig 单个 logger 的声明式配置
type PipelineConfig struct {
	MinimumLevel    string          `koanf:"minimum_level"`
	DefaultCategory string          `koanf:"default_category"`
	CloseTimeout    time.Duration   `koanf:"close_timeout"`
	FlushSchedule   string          `koanf:"flush_schedule"`
	Sinks           []SinkConfig    `koanf:"sinks"`
	Handlers        []HandlerConfig `koanf:"handlers"`
}

// SinkConfig Type 决定读取哪个子节。file/rolling 使用 Format，远端 sink 使用 Batch。
type SinkConfig struct {
	Type   string      `koanf:"type"`
	Format string      `koanf:"format"`
	Batch  BatchConfig `koanf:"batch"`

	Console    *ConsoleConfig           `koanf:"console"`
	File       *FileSinkConfig          `koanf:"file"`
	Rolling    *RollingConfig           `koanf:"rolling"`
	SQL        *SQLConfig               `koanf:"sql"`
	ClickHouse *ClickHouseConfig        `koanf:"clickhouse"`
	Redis      *RedisConfig             `koanf:"redis"`
	HTTP       *HTTPConfig              `koanf:"http"`
	Kafka      *xkafkasink.WriterConfig `koanf:"kafka"`
	S3         *S3Config                `koanf:"s3"`
}

// BatchConfig 远端 sink 的批量参数
type BatchConfig struct {
	Size         int                   `koanf:"size"`
	FlushTimeout time.Duration         `koanf:"flush_timeout"`
	Retry        *xbatch.RetryConfig   `koanf:"retry"`
	Breaker      *xbatch.BreakerConfig `koanf:"breaker"`
}

type ConsoleConfig struct {
	// Stream stdout 或 stderr
	Stream string `koanf:"stream"`
	// Color auto/always/never
	Color string `koanf:"color"`
}

// FileSinkConfig 按大小轮转并可压缩的文件（lumberjack）
type FileSinkConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   *bool  `koanf:"compress"`
	LocalTime  bool   `koanf:"local_time"`
}

// RollingConfig 分代文件
type RollingConfig struct {
	Path            string `koanf:"path"`
	MaxFileSize     int64  `koanf:"max_file_size"`
	MaxRollingFiles int    `koanf:"max_rolling_files"`
	Daily           bool   `koanf:"daily"`
}

type SQLConfig struct {
	Driver      string `koanf:"driver"`
	DSN         string `koanf:"dsn"`
	Table       string `koanf:"table"`
	CreateTable bool   `koanf:"create_table"`
}

type ClickHouseConfig struct {
	DSN         string `koanf:"dsn"`
	Table       string `koanf:"table"`
	CreateTable bool   `koanf:"create_table"`
}

type RedisConfig struct {
	URL    string        `koanf:"url"`
	Key    string        `koanf:"key"`
	Mode   string        `koanf:"mode"`
	MaxLen int64         `koanf:"max_len"`
	TTL    time.Duration `koanf:"ttl"`
}

type HTTPConfig struct {
	Endpoint string            `koanf:"endpoint"`
	Timeout  time.Duration     `koanf:"timeout"`
	Headers  map[string]string `koanf:"headers"`
	Sync     bool              `koanf:"sync"`

	// 异步投递并发数与排队批次数，0 取默认值
	Concurrency int `koanf:"concurrency"`
	QueueSize   int `koanf:"queue_size"`
}

type S3Config struct {
	Bucket      string               `koanf:"bucket"`
	Prefix      string               `koanf:"prefix"`
	Compression string               `koanf:"compression"`
	Client      xs3sink.ClientConfig `koanf:"client"`
}

// HandlerConfig 目前只有 mail
type HandlerConfig struct {
	Type string               `koanf:"type"`
	Mail *xhandler.MailConfig `koanf:"mail"`
}

// BuildOption Build 选项
type BuildOption func(*buildOptions)

type buildOptions struct {
	logDir   string
	diag     xlog.Logger
	observer xmetrics.Observer
	stdout   io.Writer
	stderr   io.Writer
	sendMail xhandler.SendFunc
}

// WithLogDir 相对路径文件的根目录，必须是绝对路径
func WithLogDir(dir string) BuildOption {
	return func(o *buildOptions) { o.logDir = dir }
}

// WithDiagnostics 远端 sink 的诊断日志
func WithDiagnostics(l xlog.Logger) BuildOption {
	return func(o *buildOptions) { o.diag = l }
}

// WithObserver 远端 sink 批次发送的观测器
func WithObserver(obs xmetrics.Observer) BuildOption {
	return func(o *buildOptions) { o.observer = obs }
}

// WithStreams 替换 console sink 的 stdout/stderr
func WithStreams(stdout, stderr io.Writer) BuildOption {
	return func(o *buildOptions) {
		if stdout != nil {
			o.stdout = stdout
		}
		if stderr != nil {
			o.stderr = stderr
		}
	}
}

// WithMailSender 替换 mail handler 的发送实现
func WithMailSender(fn xhandler.SendFunc) BuildOption {
	return func(o *buildOptions) { o.sendMail = fn }
}

// Build 按配置创建 sink 与 handler。
//
// 任一项失败时已创建的 sink 会被关闭，返回的错误指出失败项的序号与类型。
func Build(ctx context.Context, cfg PipelineConfig, opts ...BuildOption) (xdispatch.Config, error) {
	o := buildOptions{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	level, err := parseLevel(cfg.MinimumLevel)
	if err != nil {
		return xdispatch.Config{}, err
	}
	out := xdispatch.Config{MinimumLevel: level, DefaultCategory: cfg.DefaultCategory}

	for i, sc := range cfg.Sinks {
		s, err := buildSink(ctx, sc, &o)
		if err != nil {
			return xdispatch.Config{}, errors.Join(
				fmt.Errorf("sinks[%d] (%s): %w", i, sc.Type, err),
				closeSinks(ctx, out.Sinks),
			)
		}
		out.Sinks = append(out.Sinks, s)
	}
	for i, hc := range cfg.Handlers {
		h, err := buildHandler(hc, &o)
		if err != nil {
			return xdispatch.Config{}, errors.Join(
				fmt.Errorf("handlers[%d] (%s): %w", i, hc.Type, err),
				closeSinks(ctx, out.Sinks),
			)
		}
		out.Handlers = append(out.Handlers, h)
	}
	return out, nil
}

// Options 把 logger 级别的设置转换为 xdispatch 选项
func (c PipelineConfig) Options() []xdispatch.Option {
	var opts []xdispatch.Option
	if c.CloseTimeout > 0 {
		opts = append(opts, xdispatch.WithCloseTimeout(c.CloseTimeout))
	}
	if c.FlushSchedule != "" {
		opts = append(opts, xdispatch.WithFlushSchedule(c.FlushSchedule))
	}
	return opts
}

func parseLevel(s string) (xlevel.Level, error) {
	if strings.TrimSpace(s) == "" {
		return xlevel.Level{}, nil
	}
	l, err := xlevel.ParseLevel(s)
	if err != nil {
		return xlevel.Level{}, fmt.Errorf("%w: %q: %w", ErrInvalidLevel, s, err)
	}
	return l, nil
}

func closeSinks(ctx context.Context, sinks []xsink.Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", xsink.NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}

func buildSink(ctx context.Context, sc SinkConfig, o *buildOptions) (xsink.Sink, error) {
	formatter, err := xentry.ParseFormatter(sc.Format)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(sc.Type) {
	case "console":
		return buildConsole(sc.Console, formatter, o)
	case "file":
		if sc.File == nil {
			return nil, ErrMissingSection
		}
		return buildFile(*sc.File, formatter, o)
	case "rolling":
		if sc.Rolling == nil {
			return nil, ErrMissingSection
		}
		return buildRolling(*sc.Rolling, formatter, o)
	case "sql":
		if sc.SQL == nil {
			return nil, ErrMissingSection
		}
		c := sc.SQL
		driver := c.Driver
		if driver == "" {
			driver = xsqlsink.DefaultDriver
		}
		opts := []xsqlsink.Option{
			xsqlsink.WithCreateTable(c.CreateTable),
			xsqlsink.WithBatch(batchOptions(sc.Batch, o)...),
		}
		if c.Table != "" {
			opts = append(opts, xsqlsink.WithTable(c.Table))
		}
		return xsqlsink.Open(ctx, driver, c.DSN, opts...)
	case "clickhouse":
		if sc.ClickHouse == nil {
			return nil, ErrMissingSection
		}
		c := sc.ClickHouse
		opts := []xchsink.Option{
			xchsink.WithCreateTable(c.CreateTable),
			xchsink.WithBatch(batchOptions(sc.Batch, o)...),
		}
		if c.Table != "" {
			opts = append(opts, xchsink.WithTable(c.Table))
		}
		return xchsink.Open(ctx, c.DSN, opts...)
	case "redis":
		if sc.Redis == nil {
			return nil, ErrMissingSection
		}
		return buildRedis(*sc.Redis, batchOptions(sc.Batch, o))
	case "http":
		if sc.HTTP == nil {
			return nil, ErrMissingSection
		}
		return buildHTTP(*sc.HTTP, batchOptions(sc.Batch, o), o)
	case "kafka":
		if sc.Kafka == nil {
			return nil, ErrMissingSection
		}
		return xkafkasink.Open(*sc.Kafka, batchOptions(sc.Batch, o)...)
	case "s3":
		if sc.S3 == nil {
			return nil, ErrMissingSection
		}
		return buildS3(ctx, *sc.S3, batchOptions(sc.Batch, o))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, sc.Type)
	}
}

func buildConsole(c *ConsoleConfig, formatter xentry.Formatter, o *buildOptions) (xsink.Sink, error) {
	opts := []xsink.ConsoleOption{xsink.WithConsoleFormatter(formatter)}
	if c == nil {
		return xsink.NewConsole(opts...), nil
	}
	switch strings.ToLower(c.Stream) {
	case "", "stdout":
		opts = append(opts, xsink.WithStream(o.stdout))
	case "stderr":
		opts = append(opts, xsink.WithStream(o.stderr))
	default:
		return nil, fmt.Errorf("xregistry: unknown console stream %q", c.Stream)
	}
	mode, ok := xsink.ParseColorMode(c.Color)
	if !ok {
		return nil, fmt.Errorf("xregistry: unknown color mode %q", c.Color)
	}
	return xsink.NewConsole(append(opts, xsink.WithColor(mode))...), nil
}

func buildFile(c FileSinkConfig, formatter xentry.Formatter, o *buildOptions) (xsink.Sink, error) {
	path, err := xfile.ResolveIn(o.logDir, c.Path)
	if err != nil {
		return nil, err
	}
	var ropts []xrotate.Option
	if c.MaxSizeMB > 0 {
		ropts = append(ropts, xrotate.WithMaxSize(c.MaxSizeMB))
	}
	if c.MaxBackups > 0 {
		ropts = append(ropts, xrotate.WithMaxBackups(c.MaxBackups))
	}
	if c.MaxAgeDays > 0 {
		ropts = append(ropts, xrotate.WithMaxAge(c.MaxAgeDays))
	}
	if c.Compress != nil {
		ropts = append(ropts, xrotate.WithCompress(*c.Compress))
	}
	ropts = append(ropts, xrotate.WithLocalTime(c.LocalTime))

	r, err := xrotate.NewLumberjack(path, ropts...)
	if err != nil {
		return nil, err
	}
	return xsink.NewWriter(r,
		xsink.WithFormatter(formatter),
		xsink.WithName("file:"+path),
		xsink.WithOwnership(true))
}

func buildRolling(c RollingConfig, formatter xentry.Formatter, o *buildOptions) (xsink.Sink, error) {
	path, err := xfile.ResolveIn(o.logDir, c.Path)
	if err != nil {
		return nil, err
	}
	gopts := []xrotate.GenerationalOption{xrotate.WithDailyRolling(c.Daily)}
	if c.MaxFileSize > 0 {
		gopts = append(gopts, xrotate.WithMaxFileSize(c.MaxFileSize))
	}
	if c.MaxRollingFiles > 0 {
		gopts = append(gopts, xrotate.WithMaxRollingFiles(c.MaxRollingFiles))
	}
	return xsink.NewRolling(path, formatter, gopts...)
}

func buildRedis(c RedisConfig, batch []xbatch.Option) (xsink.Sink, error) {
	opts := []xredissink.Option{
		xredissink.WithKey(c.Key),
		xredissink.WithMaxLen(c.MaxLen),
		xredissink.WithTTL(c.TTL),
		xredissink.WithBatch(batch...),
	}
	if c.Mode != "" {
		mode, err := xredissink.ParseMode(c.Mode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, xredissink.WithMode(mode))
	}
	return xredissink.Open(c.URL, opts...)
}

func buildHTTP(c HTTPConfig, batch []xbatch.Option, o *buildOptions) (xsink.Sink, error) {
	opts := []xhttpsink.Option{
		xhttpsink.WithTimeout(c.Timeout),
		xhttpsink.WithSync(c.Sync),
		xhttpsink.WithConcurrency(c.Concurrency, c.QueueSize),
		xhttpsink.WithBatch(batch...),
	}
	if o.diag != nil {
		opts = append(opts, xhttpsink.WithLogger(o.diag))
	}
	for k, v := range c.Headers {
		opts = append(opts, xhttpsink.WithHeader(k, v))
	}
	return xhttpsink.New(c.Endpoint, opts...)
}

func buildS3(ctx context.Context, c S3Config, batch []xbatch.Option) (xsink.Sink, error) {
	compression, err := xs3sink.ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	client, err := xs3sink.NewClient(ctx, c.Client)
	if err != nil {
		return nil, err
	}
	return xs3sink.New(client, c.Bucket, c.Prefix, compression, batch...)
}

func batchOptions(c BatchConfig, o *buildOptions) []xbatch.Option {
	opts := []xbatch.Option{
		xbatch.WithPolicy(xbatch.Policy{Retry: c.Retry, Breaker: c.Breaker}),
	}
	if c.Size > 0 {
		opts = append(opts, xbatch.WithBatchSize(c.Size))
	}
	if c.FlushTimeout > 0 {
		opts = append(opts, xbatch.WithFlushTimeout(c.FlushTimeout))
	}
	if o.observer != nil {
		opts = append(opts, xbatch.WithObserver(o.observer))
	}
	if o.diag != nil {
		opts = append(opts, xbatch.WithLogger(o.diag))
	}
	return opts
}

func buildHandler(hc HandlerConfig, o *buildOptions) (xhandler.Handler, error) {
	switch strings.ToLower(hc.Type) {
	case "mail":
		if hc.Mail == nil {
			return nil, ErrMissingSection
		}
		var opts []xhandler.MailOption
		if o.sendMail != nil {
			opts = append(opts, xhandler.WithSendFunc(o.sendMail))
		}
		return xhandler.NewMail(*hc.Mail, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, hc.Type)
	}
}
