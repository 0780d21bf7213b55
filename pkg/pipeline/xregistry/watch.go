package xregistry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/omeyang/xlogpipe/pkg/config/xconf"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
)

// LoadFile 读取并解析配置文件（.yaml/.yml/.json）
func LoadFile(path string) (FileConfig, xconf.Config, error) {
	cfg, err := xconf.New(path)
	if err != nil {
		return FileConfig{}, nil, err
	}
	fc, err := decode(cfg)
	if err != nil {
		return FileConfig{}, nil, err
	}
	return fc, cfg, nil
}

func decode(cfg xconf.Config) (FileConfig, error) {
	var fc FileConfig
	if err := cfg.Unmarshal("", &fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

// Apply 按 FileConfig 创建或替换其中每个 logger。
// 单个 logger 构建失败不影响其他 logger，错误合并返回。
// 替换时旧 logger 先关闭，构建失败的名称随之注销。
func (r *Registry) Apply(ctx context.Context, fc FileConfig, opts ...BuildOption) error {
	if fc.LogDir != "" {
		opts = append([]BuildOption{WithLogDir(fc.LogDir)}, opts...)
	}
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(fc.Loggers)) {
		if _, err := r.CreateFromConfig(ctx, name, fc.Loggers[name], opts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Watcher 配置热重载，由 LoadAndWatch 创建
type Watcher struct {
	r       *Registry
	cfg     xconf.Config
	watcher *xconf.Watcher
	opts    []BuildOption
	ctx     context.Context

	mu      sync.Mutex
	managed map[string]struct{}
	reloads int
}

// WatchOption LoadAndWatch 选项
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
	build    []BuildOption
}

// WithDebounce 文件变更防抖窗口，默认 xconf.DefaultDebounce
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) { c.debounce = d }
}

// WithBuildOptions 每次构建管线时使用的选项
func WithBuildOptions(opts ...BuildOption) WatchOption {
	return func(c *watchConfig) { c.build = append(c.build, opts...) }
}

// LoadAndWatch 加载配置文件并创建其中的 logger，之后文件每次变更都重建它们。
//
// 重载时从配置中删除的 logger 会被关闭并注销；新配置解析失败时保留现有 logger。
// 初次加载时个别 logger 构建失败会返回错误，已创建的 logger 仍留在注册表中。
// 调用方负责 Stop；Stop 不关闭 logger。
func (r *Registry) LoadAndWatch(ctx context.Context, path string, opts ...WatchOption) (*Watcher, error) {
	wc := watchConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&wc)
		}
	}

	fc, cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		r:       r,
		cfg:     cfg,
		opts:    wc.build,
		ctx:     context.WithoutCancel(ctx),
		managed: make(map[string]struct{}),
	}
	if err := w.apply(ctx, fc); err != nil {
		return nil, err
	}

	var wopts []xconf.WatchOption
	if wc.debounce > 0 {
		wopts = append(wopts, xconf.WithDebounce(wc.debounce))
	}
	xw, err := xconf.Watch(cfg, w.onReload, wopts...)
	if err != nil {
		return nil, fmt.Errorf("xregistry: watch %s: %w", path, err)
	}
	w.watcher = xw
	xw.StartAsync()
	return w, nil
}

// Stop 停止监视
func (w *Watcher) Stop() error {
	return w.watcher.Stop()
}

// Reloads 成功应用的重载次数
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) onReload(cfg xconf.Config, err error) {
	ctx := w.ctx
	if err != nil {
		w.r.diag.Warn(ctx, "config reload failed, keeping current loggers", xlog.Path(cfg.Path()), xlog.Err(err))
		return
	}
	fc, err := decode(cfg)
	if err != nil {
		w.r.diag.Warn(ctx, "config decode failed, keeping current loggers", xlog.Path(cfg.Path()), xlog.Err(err))
		return
	}
	if err := w.apply(ctx, fc); err != nil {
		w.r.diag.Warn(ctx, "config applied with errors", xlog.Path(cfg.Path()), xlog.Err(err))
	}
	w.mu.Lock()
	w.reloads++
	n := w.reloads
	w.mu.Unlock()
	w.r.diag.Info(ctx, "config reloaded", xlog.Path(cfg.Path()), xlog.Count(int64(n)))
}

// apply 创建新配置中的 logger，关闭上次配置中有、这次没有的
func (w *Watcher) apply(ctx context.Context, fc FileConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.r.Apply(ctx, fc, w.opts...)
	for name := range w.managed {
		if _, ok := fc.Loggers[name]; ok {
			continue
		}
		if cerr := w.r.Close(ctx, name); cerr != nil && !errors.Is(cerr, ErrNotFound) {
			err = errors.Join(err, cerr)
		}
		delete(w.managed, name)
	}
	for name := range fc.Loggers {
		w.managed[name] = struct{}{}
	}
	return err
}
