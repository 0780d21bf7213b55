package xconf

// Options 配置加载选项
type Options struct {
	// Delim 键分隔符，默认 "."
	Delim string

	// Tag Unmarshal 使用的结构体标签，默认 "koanf"
	Tag string

	// ExpandEnv 解析前展开 ${VAR}/$VAR
	ExpandEnv bool
}

// Option 配置选项函数
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Delim: ".",
		Tag:   "koanf",
	}
}

func WithDelim(delim string) Option {
	return func(o *Options) {
		if delim != "" {
			o.Delim = delim
		}
	}
}

func WithTag(tag string) Option {
	return func(o *Options) {
		if tag != "" {
			o.Tag = tag
		}
	}
}

// WithEnvExpand 解析前对原始内容做环境变量展开，未设置的变量展开为空串
func WithEnvExpand(enable bool) Option {
	return func(o *Options) {
		o.ExpandEnv = enable
	}
}
