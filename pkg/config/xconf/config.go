package xconf

import "github.com/knadh/koanf/v2"

// Format 配置文件格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 配置实例。基础读取直接使用 Client() 返回的 koanf 实例。
type Config interface {
	Client() *koanf.Koanf

	// Unmarshal 将 path 下的配置反序列化到 target，path 为空表示整个配置
	Unmarshal(path string, target any) error

	// Reload 重新读取文件；从字节创建的实例返回 ErrReloadBytes
	Reload() error

	// Path 配置文件路径，从字节创建时为空
	Path() string

	Format() Format
}
