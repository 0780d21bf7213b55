package xsink

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
)

// ColorMode 控制台着色策略
type ColorMode int

const (
	// ColorAuto 目标是终端时着色
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// ParseColorMode 解析 auto/always/never，空值为 auto
func ParseColorMode(s string) (ColorMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ColorAuto, true
	case "always", "on", "true":
		return ColorAlways, true
	case "never", "off", "false":
		return ColorNever, true
	}
	return ColorAuto, false
}

const ansiReset = "\x1b[0m"

// levelColors 预定义级别的 ANSI 颜色，自定义级别不着色
var levelColors = map[xlevel.Level]string{
	xlevel.Trace:   "\x1b[90m", // gray
	xlevel.Debug:   "\x1b[34m", // blue
	xlevel.Info:    "\x1b[32m", // green
	xlevel.Warning: "\x1b[33m", // yellow
	xlevel.Error:   "\x1b[31m", // red
	xlevel.Fatal:   "\x1b[31;2m",
}

// ConsoleOption Console 选项
type ConsoleOption func(*Console)

// WithStream 输出流，默认 os.Stdout
func WithStream(w io.Writer) ConsoleOption {
	return func(c *Console) {
		if w != nil {
			c.out = w
		}
	}
}

// WithConsoleFormatter 默认 TextFormatter
func WithConsoleFormatter(f xentry.Formatter) ConsoleOption {
	return func(c *Console) {
		if f != nil {
			c.formatter = f
		}
	}
}

func WithColor(mode ColorMode) ConsoleOption {
	return func(c *Console) { c.mode = mode }
}

// Console 写到标准输出/错误，按级别着色
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	formatter xentry.Formatter
	mode      ColorMode
	color     bool
}

// NewConsole 创建控制台 sink，着色与否在构造时确定
func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{out: os.Stdout, formatter: xentry.TextFormatter{}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	switch c.mode {
	case ColorAlways:
		c.color = true
	case ColorNever:
		c.color = false
	default:
		c.color = isTerminal(c.out)
	}
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *Console) Name() string { return "console" }

// Colored 是否输出 ANSI 颜色
func (c *Console) Colored() bool { return c.color }

func (c *Console) Write(_ context.Context, e *xentry.Entry) error {
	line, err := c.formatter.Format(e)
	if err != nil {
		return err
	}

	var b strings.Builder
	color, ok := levelColors[e.Level]
	if c.color && ok && e.Level.IsPredefined() {
		b.Grow(len(color) + len(line) + len(ansiReset) + 1)
		b.WriteString(color)
		b.WriteString(line)
		b.WriteString(ansiReset)
	} else {
		b.WriteString(line)
	}
	b.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = io.WriteString(c.out, b.String())
	return err
}

func (c *Console) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.out.(*os.File); ok && !isTerminal(f) {
		// 管道或重定向到文件时才需要 Sync，终端 Sync 会返回 EINVAL
		_ = f.Sync()
	}
	return nil
}

// Close 不关闭标准流
func (c *Console) Close(ctx context.Context) error {
	return c.Flush(ctx)
}
