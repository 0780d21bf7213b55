package xrotate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/xlogpipe/pkg/util/xfile"
)

// 分代轮转默认配置
const (
	// DefaultMaxFileSize 默认单文件上限（10 MiB）
	DefaultMaxFileSize = 10 * 1024 * 1024

	// DefaultMaxRollingFiles 默认保留的分代文件数
	DefaultMaxRollingFiles = 5

	// DefaultGenerationalFileMode 新建文件权限
	DefaultGenerationalFileMode os.FileMode = 0o644

	// dateLayout 日期段格式 yyyy-MM-dd
	dateLayout = "2006-01-02"

	// tokenLen 会话标识长度（十六进制字符）
	tokenLen = 8

	// maxRollingFilesLimit 分代数量上限
	maxRollingFilesLimit = 1024
)

type generationalConfig struct {
	maxFileSize     int64
	maxRollingFiles int
	daily           bool
	fileMode        os.FileMode
	token           string
	now             func() time.Time
}

// GenerationalOption 分代轮转配置选项
type GenerationalOption func(*generationalConfig)

// WithMaxFileSize 设置单文件字节上限，写入后会超过上限时先轮转
func WithMaxFileSize(bytes int64) GenerationalOption {
	return func(c *generationalConfig) { c.maxFileSize = bytes }
}

// WithMaxRollingFiles 设置保留的分代文件数（.1 .. .n）
func WithMaxRollingFiles(n int) GenerationalOption {
	return func(c *generationalConfig) { c.maxRollingFiles = n }
}

// WithDailyRolling 启用按日期切换文件，文件名带 .{yyyy-MM-dd}.{token} 段
func WithDailyRolling(enable bool) GenerationalOption {
	return func(c *generationalConfig) { c.daily = enable }
}

// WithGenerationalFileMode 设置新建文件权限
func WithGenerationalFileMode(mode os.FileMode) GenerationalOption {
	return func(c *generationalConfig) { c.fileMode = mode }
}

// WithSessionToken 指定会话标识（8 位十六进制），默认随机生成
func WithSessionToken(token string) GenerationalOption {
	return func(c *generationalConfig) { c.token = token }
}

// WithClock 设置时钟，Write 使用它为没有自带时间戳的数据确定日期
func WithClock(now func() time.Time) GenerationalOption {
	return func(c *generationalConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// Generational 按大小与日期轮转的文件写入器。
//
// 文件命名：
//
//	{dir}/{base}[.{yyyy-MM-dd}.{token}][.{gen}]{ext}
//
// 日期段仅在启用按日期轮转时出现；分代序号只出现在已轮转的文件上，
// 当前活动文件没有序号。分代文件编号 1..maxRollingFiles，超出上限的那一代被删除。
//
// 所有状态由一把互斥锁保护，外部 Flush/Rotate 不会与写入路径上的轮转交错。
type Generational struct {
	mu sync.Mutex

	dir  string
	base string
	ext  string
	cfg  generationalConfig

	file *os.File
	path string
	size int64
	date string

	closed atomic.Bool
}

var _ Rotator = (*Generational)(nil)

// NewGenerational 创建分代轮转写入器并打开活动文件
func NewGenerational(filename string, opts ...GenerationalOption) (*Generational, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}

	cfg := generationalConfig{
		maxFileSize:     DefaultMaxFileSize,
		maxRollingFiles: DefaultMaxRollingFiles,
		fileMode:        DefaultGenerationalFileMode,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := validateGenerational(&cfg); err != nil {
		return nil, err
	}

	safePath, err := xfile.SanitizePath(filename)
	if err != nil {
		return nil, err
	}
	if err := xfile.EnsureDir(safePath); err != nil {
		return nil, err
	}

	ext := filepath.Ext(safePath)
	g := &Generational{
		dir:  filepath.Dir(safePath),
		base: strings.TrimSuffix(filepath.Base(safePath), ext),
		ext:  ext,
		cfg:  cfg,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cfg.daily {
		g.date = cfg.now().Format(dateLayout)
	}
	if err := g.openActive(); err != nil {
		return nil, err
	}
	return g, nil
}

func validateGenerational(cfg *generationalConfig) error {
	if cfg.maxFileSize <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMaxSize, cfg.maxFileSize)
	}
	if cfg.maxRollingFiles < 1 || cfg.maxRollingFiles > maxRollingFilesLimit {
		return fmt.Errorf("%w: got %d, want 1~%d", ErrInvalidMaxBackups, cfg.maxRollingFiles, maxRollingFilesLimit)
	}
	if cfg.fileMode&^os.FileMode(0o777) != 0 {
		return fmt.Errorf("%w: got %04o", ErrInvalidFileMode, cfg.fileMode)
	}
	if cfg.token == "" {
		cfg.token = newSessionToken()
	}
	if !isHexToken(cfg.token) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionToken, cfg.token)
	}
	return nil
}

// newSessionToken 取随机 UUID 的前 8 个十六进制字符
func newSessionToken() string {
	return uuid.NewString()[:tokenLen]
}

func isHexToken(s string) bool {
	if len(s) != tokenLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// SessionToken 返回本实例的会话标识
func (g *Generational) SessionToken() string { return g.cfg.token }

// ActivePath 返回当前活动文件路径
func (g *Generational) ActivePath() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.path
}

// Size 返回活动文件当前字节数
func (g *Generational) Size() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.size
}

// GenerationPath 返回活动日期下第 gen 代文件的路径
func (g *Generational) GenerationPath(gen int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pathFor(g.date, gen)
}

// pathFor 拼出指定日期与分代的文件名，gen=0 表示活动文件
func (g *Generational) pathFor(date string, gen int) string {
	var b strings.Builder
	b.WriteString(g.base)
	if g.cfg.daily {
		b.WriteByte('.')
		b.WriteString(date)
		b.WriteByte('.')
		b.WriteString(g.cfg.token)
	}
	if gen > 0 {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(gen))
	}
	b.WriteString(g.ext)
	return filepath.Join(g.dir, b.String())
}

// Write 以时钟当前时间写入，实现 io.Writer
func (g *Generational) Write(p []byte) (int, error) {
	if err := g.WriteAt(g.cfg.now(), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteAt 以 ts 决定日期写入一行数据。
//
// 顺序固定：先做日期检查（使用 ts 而非墙上时钟），再做大小检查，最后追加。
// 轮转过程中的任何 I/O 错误直接返回，本次数据不写入，不重试。
// 活动文件为空时不做大小轮转：超过上限的单行直接写入空文件，不产生空分代。
func (g *Generational) WriteAt(ts time.Time, p []byte) error {
	if g.closed.Load() {
		return ErrClosed
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed.Load() {
		return ErrClosed
	}

	if g.cfg.daily {
		if d := ts.Format(dateLayout); d != g.date {
			if err := g.switchDate(d); err != nil {
				return err
			}
		}
	}

	if g.file == nil {
		if err := g.openActive(); err != nil {
			return err
		}
	}

	n := int64(len(p))
	if g.size > 0 && g.size+n > g.cfg.maxFileSize {
		if err := g.rotate(); err != nil {
			return err
		}
	}

	written, err := g.file.Write(p)
	g.size += int64(written)
	if err != nil {
		return fmt.Errorf("xrotate: write %s: %w", g.path, err)
	}
	return nil
}

// Rotate 立即执行一次大小轮转，实现 Rotator
func (g *Generational) Rotate() error {
	if g.closed.Load() {
		return ErrClosed
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.file == nil {
		if err := g.openActive(); err != nil {
			return err
		}
	}
	return g.rotate()
}

// Sync 将活动文件刷到磁盘
func (g *Generational) Sync() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.file == nil {
		return nil
	}
	return g.file.Sync()
}

// Close 关闭活动文件。重复调用返回 ErrClosed。
func (g *Generational) Close() error {
	if g.closed.Swap(true) {
		return ErrClosed
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closeFile()
}

// switchDate 切换到新日期的文件，旧日期的分代文件保持原样
func (g *Generational) switchDate(date string) error {
	if err := g.closeFile(); err != nil {
		return err
	}
	g.date = date
	return g.openActive()
}

// rotate 大小轮转：删除第 max 代，i -> i+1 依次后移，活动文件改名为第 1 代，重新打开
func (g *Generational) rotate() error {
	if err := g.closeFile(); err != nil {
		return err
	}

	maxGen := g.cfg.maxRollingFiles
	if err := os.Remove(g.pathFor(g.date, maxGen)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("xrotate: remove generation %d: %w", maxGen, err)
	}
	for i := maxGen - 1; i >= 1; i-- {
		if err := os.Rename(g.pathFor(g.date, i), g.pathFor(g.date, i+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("xrotate: shift generation %d: %w", i, err)
		}
	}
	if err := os.Rename(g.path, g.pathFor(g.date, 1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("xrotate: rename active file: %w", err)
	}

	if err := g.openActive(); err != nil {
		return err
	}
	g.size = 0
	return nil
}

// openActive 以追加模式打开当前日期的活动文件，size 取文件已有长度
func (g *Generational) openActive() error {
	path := g.pathFor(g.date, 0)
	//#nosec G304 -- 路径已经过 SanitizePath
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, g.cfg.fileMode)
	if err != nil {
		return fmt.Errorf("xrotate: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("xrotate: stat %s: %w", path, err)
	}
	g.file = f
	g.path = path
	g.size = info.Size()
	return nil
}

func (g *Generational) closeFile() error {
	if g.file == nil {
		return nil
	}
	err := g.file.Close()
	g.file = nil
	if err != nil {
		return fmt.Errorf("xrotate: close %s: %w", g.path, err)
	}
	return nil
}
