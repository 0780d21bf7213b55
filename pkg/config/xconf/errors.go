package xconf

import "errors"

var (
	ErrEmptyPath         = errors.New("xconf: empty config path")
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")
	ErrLoadFailed        = errors.New("xconf: failed to load config")
	ErrParseFailed       = errors.New("xconf: failed to parse config")
	ErrUnmarshalFailed   = errors.New("xconf: failed to unmarshal config")

	// ErrReloadBytes 从字节创建的配置不能 Reload 或 Watch
	ErrReloadBytes = errors.New("xconf: config created from bytes cannot be reloaded")

	// ErrUnsupportedConfig Watch 只支持本包创建的 Config
	ErrUnsupportedConfig = errors.New("xconf: unsupported config type")
)
