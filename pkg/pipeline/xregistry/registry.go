package xregistry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xdispatch"
)

var (
	// ErrNotFound 名称未注册
	ErrNotFound = errors.New("xregistry: logger not found")

	// ErrEmptyName 名称为空
	ErrEmptyName = errors.New("xregistry: empty logger name")
)

// Registry 名称到 logger 的映射，并发安全
type Registry struct {
	mu      sync.RWMutex
	loggers map[string]*xdispatch.Logger
	diag    xlog.Logger
}

// Option Registry 选项
type Option func(*Registry)

// WithRegistryDiagnostics 设置替换、重载过程的诊断日志
func WithRegistryDiagnostics(l xlog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.diag = l
		}
	}
}

// New 创建空注册表
func New(opts ...Option) *Registry {
	r := &Registry{loggers: make(map[string]*xdispatch.Logger)}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.diag = xlog.OrDefault(r.diag).With(xlog.Component("xregistry"))
	return r
}

var defaultRegistry = New()

// Default 返回进程级注册表
func Default() *Registry { return defaultRegistry }

// Create 创建 logger 并以 name 注册。已有同名 logger 时先完成替换，再关闭旧的；
// 旧 logger 关闭失败只写诊断日志。构造失败时原有 logger 不受影响。
// cfg 中的 sink 已由调用方打开，与旧 logger 共用文件路径时改用 CreateFromConfig。
func (r *Registry) Create(ctx context.Context, name string, cfg xdispatch.Config, opts ...xdispatch.Option) (*xdispatch.Logger, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	l, err := xdispatch.New(cfg, append([]xdispatch.Option{xdispatch.WithName(name)}, opts...)...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.loggers[name]
	r.loggers[name] = l
	r.mu.Unlock()

	if old != nil {
		if err := old.Close(ctx); err != nil {
			r.diag.Warn(ctx, "close replaced logger failed", xlog.LoggerName(name), xlog.Err(err))
		}
	}
	return l, nil
}

// CreateFromConfig Build 后 Create。构建失败时已创建的 sink 会被关闭。
//
// 已有同名 logger 时先注销并关闭它，再打开新的 sink：新旧配置指向同一个
// 文件时，旧 logger 排空后的轮转不会把新 logger 的写入带进 .1 代。
// 因此构建失败后该名称不再注册。
func (r *Registry) CreateFromConfig(ctx context.Context, name string, cfg PipelineConfig, opts ...BuildOption) (*xdispatch.Logger, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	r.release(ctx, name)

	dc, err := Build(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("xregistry: build %s: %w", name, err)
	}
	dopts := cfg.Options()
	b := applyBuild(opts)
	if b.diag != nil {
		dopts = append(dopts, xdispatch.WithDiagnostics(b.diag))
	}
	if b.observer != nil {
		dopts = append(dopts, xdispatch.WithObserver(b.observer))
	}
	l, err := r.Create(ctx, name, dc, dopts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("xregistry: create %s: %w", name, err), closeSinks(ctx, dc.Sinks))
	}
	return l, nil
}

// release 注销并关闭同名 logger，关闭失败只写诊断日志
func (r *Registry) release(ctx context.Context, name string) {
	r.mu.Lock()
	old, ok := r.loggers[name]
	delete(r.loggers, name)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := old.Close(ctx); err != nil {
		r.diag.Warn(ctx, "close replaced logger failed", xlog.LoggerName(name), xlog.Err(err))
	}
}

// Get 按名称取 logger
func (r *Registry) Get(name string) (*xdispatch.Logger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loggers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return l, nil
}

// Names 已注册名称，按字典序
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loggers))
	for n := range r.loggers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Close 注销并关闭一个 logger
func (r *Registry) Close(ctx context.Context, name string) error {
	r.mu.Lock()
	l, ok := r.loggers[name]
	delete(r.loggers, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return l.Close(ctx)
}

// CloseAll 关闭全部 logger 并清空注册表，错误合并返回
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	loggers := r.loggers
	r.loggers = make(map[string]*xdispatch.Logger)
	r.mu.Unlock()

	names := make([]string, 0, len(loggers))
	for n := range loggers {
		names = append(names, n)
	}
	slices.Sort(names)

	var errs []error
	for _, n := range names {
		if err := loggers[n].Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

func applyBuild(opts []BuildOption) buildOptions {
	var o buildOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
