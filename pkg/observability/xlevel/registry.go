package xlevel

import (
	"fmt"
	"strings"
	"sync"
)

// Registry 自定义级别注册表，用于按名称解析配置中的自定义级别。
// 并发安全。
type Registry struct {
	mu     sync.RWMutex
	levels map[string]Level
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{levels: make(map[string]Level)}
}

var defaultRegistry = NewRegistry()

// Default 返回包级默认注册表（ParseLevel/UnmarshalText 使用）
func Default() *Registry { return defaultRegistry }

// Register 在默认注册表中注册自定义级别
func Register(l Level) error { return defaultRegistry.Register(l) }

// Register 注册自定义级别。名称与预定义级别冲突，或与已注册的不同级别重名时报错。
// 重复注册完全相同的级别是幂等的。
func (r *Registry) Register(l Level) error {
	if !l.IsCustom() {
		return fmt.Errorf("%w: %q is not a custom level", ErrNameConflict, l.String())
	}
	key := strings.ToLower(l.name)
	if _, ok := parsePredefined(key); ok {
		return fmt.Errorf("%w: %q", ErrNameConflict, l.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.levels[key]; ok && !old.Equal(l) {
		return fmt.Errorf("%w: %q", ErrNameConflict, l.name)
	}
	r.levels[key] = l
	return nil
}

// Lookup 按名称查找自定义级别（大小写不敏感）
func (r *Registry) Lookup(name string) (Level, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.levels[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// Parse 解析级别名称：预定义优先，其次是注册表中的自定义级别
func (r *Registry) Parse(s string) (Level, error) {
	if l, ok := parsePredefined(s); ok {
		return l, nil
	}
	if l, ok := r.Lookup(s); ok {
		return l, nil
	}
	return Level{}, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}
