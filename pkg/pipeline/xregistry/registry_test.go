package xregistry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xdispatch"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xsink"
)

func countingSink(name string, closed *atomic.Int32, closeErr error) *xsink.Func {
	return &xsink.Func{
		SinkName: name,
		WriteFn:  func(context.Context, *xentry.Entry) error { return nil },
		CloseFn: func(context.Context) error {
			closed.Add(1)
			return closeErr
		},
	}
}

func TestRegistry_CreateGetClose(t *testing.T) {
	ctx := context.Background()
	r := New()

	_, err := r.Create(ctx, "", xdispatch.Config{})
	assert.ErrorIs(t, err, ErrEmptyName)

	var closedA, closedB atomic.Int32
	a, err := r.Create(ctx, "orders", xdispatch.Config{Sinks: []xsink.Sink{countingSink("a", &closedA, nil)}})
	require.NoError(t, err)
	assert.Equal(t, "orders", a.Name())
	_, err = r.Create(ctx, "billing", xdispatch.Config{Sinks: []xsink.Sink{countingSink("b", &closedB, nil)}})
	require.NoError(t, err)

	got, err := r.Get("orders")
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Equal(t, []string{"billing", "orders"}, r.Names())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Close(ctx, "orders"))
	assert.Equal(t, int32(1), closedA.Load())
	assert.Equal(t, xdispatch.StateStopped, a.State())
	assert.ErrorIs(t, r.Close(ctx, "orders"), ErrNotFound)

	require.NoError(t, r.CloseAll(ctx))
	assert.Equal(t, int32(1), closedB.Load())
	assert.Empty(t, r.Names())
}

func TestRegistry_CreateReplaces(t *testing.T) {
	ctx := context.Background()
	var diag bytes.Buffer
	logger, cleanup, err := xlog.New().SetOutput(&diag).SetFormat("json").Build()
	require.NoError(t, err)
	defer func() { _ = cleanup() }()
	r := New(WithRegistryDiagnostics(logger))

	var closedOld, closedNew atomic.Int32
	old, err := r.Create(ctx, "svc", xdispatch.Config{Sinks: []xsink.Sink{countingSink("old", &closedOld, errors.New("old close failed"))}})
	require.NoError(t, err)

	repl, err := r.Create(ctx, "svc", xdispatch.Config{Sinks: []xsink.Sink{countingSink("new", &closedNew, nil)}})
	require.NoError(t, err)
	assert.NotSame(t, old, repl)
	assert.Equal(t, xdispatch.StateStopped, old.State())
	assert.Equal(t, int32(1), closedOld.Load())
	assert.Contains(t, diag.String(), "old close failed")

	got, err := r.Get("svc")
	require.NoError(t, err)
	assert.Same(t, repl, got)

	// 构造失败时保留现有 logger
	_, err = r.Create(ctx, "svc", xdispatch.Config{Sinks: []xsink.Sink{nil}})
	assert.ErrorIs(t, err, xdispatch.ErrNilSink)
	got, err = r.Get("svc")
	require.NoError(t, err)
	assert.Same(t, repl, got)

	require.NoError(t, r.CloseAll(ctx))
	assert.Equal(t, int32(1), closedNew.Load())
}

func TestRegistry_CloseAllJoinsErrors(t *testing.T) {
	ctx := context.Background()
	r := New()
	var n atomic.Int32
	_, err := r.Create(ctx, "a", xdispatch.Config{Sinks: []xsink.Sink{countingSink("a", &n, errors.New("a failed"))}})
	require.NoError(t, err)
	_, err = r.Create(ctx, "b", xdispatch.Config{Sinks: []xsink.Sink{countingSink("b", &n, errors.New("b failed"))}})
	require.NoError(t, err)

	err = r.CloseAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
	assert.Equal(t, int32(2), n.Load())
	assert.Empty(t, r.Names())
}

func TestRegistry_CreateFromConfig(t *testing.T) {
	ctx := context.Background()
	r := New()
	var out bytes.Buffer

	l, err := r.CreateFromConfig(ctx, "console", PipelineConfig{
		MinimumLevel: "Warning",
		CloseTimeout: 2 * time.Second,
		Sinks:        []SinkConfig{{Type: "console", Console: &ConsoleConfig{Color: "never"}}},
	}, WithStreams(&out, nil))
	require.NoError(t, err)
	l.Info(ctx, "hidden")
	l.Warning(ctx, "shown")
	require.NoError(t, r.CloseAll(ctx))
	assert.Contains(t, out.String(), "shown")
	assert.NotContains(t, out.String(), "hidden")

	_, err = r.CreateFromConfig(ctx, "bad", PipelineConfig{FlushSchedule: "every now and then"})
	assert.ErrorIs(t, err, xdispatch.ErrInvalidSchedule)
	assert.Empty(t, r.Names())
}

// 同一滚动文件上重建 logger，新写入落在活动文件而不是被旧 logger 的轮转带进 .1 代
func TestRegistry_CreateFromConfigSameRollingPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := New()
	cfg := PipelineConfig{
		MinimumLevel: "Info",
		Sinks:        []SinkConfig{{Type: "rolling", Rolling: &RollingConfig{Path: "svc.log", MaxFileSize: 400, MaxRollingFiles: 3}}},
	}

	old, err := r.CreateFromConfig(ctx, "svc", cfg, WithLogDir(dir))
	require.NoError(t, err)
	for range 5 {
		old.Info(ctx, "OLD-ENTRY "+strings.Repeat("x", 60))
	}

	repl, err := r.CreateFromConfig(ctx, "svc", cfg, WithLogDir(dir))
	require.NoError(t, err)
	assert.NotSame(t, old, repl)
	assert.Equal(t, xdispatch.StateStopped, old.State())
	repl.Info(ctx, "NEW-ENTRY")
	require.NoError(t, r.CloseAll(ctx))

	active, err := os.ReadFile(filepath.Join(dir, "svc.log"))
	require.NoError(t, err)
	assert.Contains(t, string(active), "NEW-ENTRY")

	gen1, err := os.ReadFile(filepath.Join(dir, "svc.1.log"))
	require.NoError(t, err, "旧 logger 的写入应已触发轮转")
	assert.NotContains(t, string(gen1), "NEW-ENTRY")
	assert.Contains(t, string(gen1), "OLD-ENTRY")
}

// 替换时构建失败，旧 logger 已关闭且名称注销
func TestRegistry_CreateFromConfigReplaceFailure(t *testing.T) {
	ctx := context.Background()
	r := New()
	var out bytes.Buffer
	console := PipelineConfig{Sinks: []SinkConfig{{Type: "console", Console: &ConsoleConfig{Color: "never"}}}}
	defer func() { _ = r.CloseAll(ctx) }()

	old, err := r.CreateFromConfig(ctx, "svc", console, WithStreams(&out, nil))
	require.NoError(t, err)

	_, err = r.CreateFromConfig(ctx, "svc", PipelineConfig{Sinks: []SinkConfig{{Type: "nope"}}})
	assert.ErrorIs(t, err, ErrUnknownSink)
	assert.Equal(t, xdispatch.StateStopped, old.State())
	_, err = r.Get("svc")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.CreateFromConfig(ctx, "", console)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipe.yaml")
	writeConfig(t, path, `
log_dir: /var/log/app
loggers:
  orders:
    minimum_level: Info
    close_timeout: 3s
    sinks:
      - type: redis
        redis:
          url: redis://localhost:6379/0
          ttl: 1h
        batch:
          size: 20
          retry:
            attempts: 3
            delay: 50ms
    handlers:
      - type: mail
        mail:
          host: smtp.example.com
          from: a@example.com
          to: [ops@example.com]
          level: Fatal
`)
	fc, cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, "/var/log/app", fc.LogDir)

	orders := fc.Loggers["orders"]
	assert.Equal(t, "Info", orders.MinimumLevel)
	assert.Equal(t, 3*time.Second, orders.CloseTimeout)
	require.Len(t, orders.Sinks, 1)
	sc := orders.Sinks[0]
	require.NotNil(t, sc.Redis)
	assert.Equal(t, time.Hour, sc.Redis.TTL)
	assert.Equal(t, 20, sc.Batch.Size)
	require.NotNil(t, sc.Batch.Retry)
	assert.Equal(t, uint(3), sc.Batch.Retry.Attempts)
	assert.Equal(t, 50*time.Millisecond, sc.Batch.Retry.Delay)
	require.Len(t, orders.Handlers, 1)
	assert.Equal(t, "Fatal", orders.Handlers[0].Mail.Level.String())

	_, _, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadAndWatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipe.json")
	writeConfig(t, path, `{"log_dir": "`+dir+`", "loggers": {
		"a": {"sinks": [{"type": "rolling", "rolling": {"path": "a.log"}}]},
		"b": {"sinks": [{"type": "rolling", "rolling": {"path": "b.log"}}]}
	}}`)

	r := New()
	defer func() { _ = r.CloseAll(ctx) }()

	w, err := r.LoadAndWatch(ctx, path, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	assert.Equal(t, []string{"a", "b"}, r.Names())

	firstA, err := r.Get("a")
	require.NoError(t, err)

	// 删除 b，新增 c，a 被重建
	writeConfig(t, path, `{"log_dir": "`+dir+`", "loggers": {
		"a": {"minimum_level": "Error", "sinks": [{"type": "rolling", "rolling": {"path": "a.log"}}]},
		"c": {"sinks": [{"type": "rolling", "rolling": {"path": "c.log"}}]}
	}}`)
	require.Eventually(t, func() bool { return w.Reloads() >= 1 }, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"a", "c"}, r.Names())
	newA, err := r.Get("a")
	require.NoError(t, err)
	assert.NotSame(t, firstA, newA)
	assert.Equal(t, xdispatch.StateStopped, firstA.State())
	assert.Equal(t, "Error", newA.MinimumLevel().String())

	// 无法解析的内容不影响现有 logger
	writeConfig(t, path, `{not json`)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"a", "c"}, r.Names())
}

func TestLoadAndWatch_InitialError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	writeConfig(t, path, "loggers:\n  x:\n    sinks:\n      - type: nope\n")

	r := New()
	_, err := r.LoadAndWatch(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnknownSink)
	assert.Empty(t, r.Names())
}
