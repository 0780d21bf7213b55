package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xlogpipe/pkg/lifecycle/xrun"
	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
	"github.com/omeyang/xlogpipe/pkg/observability/xlog"
	"github.com/omeyang/xlogpipe/pkg/observability/xmetrics"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xregistry"
)

// defaultShutdownTimeout 退出时关闭全部 logger 的期限
const defaultShutdownTimeout = 10 * time.Second

// errInputDone 标准输入读完，正常结束
var errInputDone = errors.New("xlogpipe: input exhausted")

type runOptions struct {
	configPath      string
	loggerName      string
	level           xlevel.Level
	category        string
	format          string
	watch           bool
	statsInterval   time.Duration
	shutdownTimeout time.Duration
	handleSignals   bool
}

func createRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "读取标准输入并送入指定 logger",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "logger",
				Aliases:  []string{"l"},
				Usage:    "配置中的 logger 名称",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "level",
				Usage: "没有级别前缀的行使用的级别",
				Value: "Info",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "没有类别的行使用的类别，为空时使用 logger 的默认类别",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "输入格式: text（可带 [Level] 前缀）或 json（每行一个对象）",
				Value: formatText,
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "配置文件变更时重建 logger",
			},
			&cli.DurationFlag{
				Name:  "stats-interval",
				Usage: "周期输出管线统计，0 表示不输出",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "退出时关闭 logger 的期限",
				Value: defaultShutdownTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			level, err := xlevel.ParseLevel(cmd.String("level"))
			if err != nil {
				return newUsageError("--level: %v", err)
			}
			format := cmd.String("format")
			if format != formatText && format != formatJSON {
				return newUsageError("--format: unknown format %q", format)
			}
			diag, cleanup, err := newDiag(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			return runPipeline(ctx, runOptions{
				configPath:      cmd.String("config"),
				loggerName:      cmd.String("logger"),
				level:           level,
				category:        cmd.String("category"),
				format:          format,
				watch:           cmd.Bool("watch"),
				statsInterval:   cmd.Duration("stats-interval"),
				shutdownTimeout: cmd.Duration("shutdown-timeout"),
				handleSignals:   true,
			}, cmd.Root().Reader, diag)
		},
	}
}

func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "解析配置并构建每个 logger（会连接远端 sink），随后全部关闭",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			diag, cleanup, err := newDiag(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			return validateConfig(ctx, cmd.String("config"), cmd.Root().Writer, diag)
		},
	}
}

func newDiag(cmd *cli.Command) (xlog.Logger, func() error, error) {
	l, cleanup, err := xlog.New().
		SetOutput(cmd.Root().ErrWriter).
		SetLevelString(cmd.String("diag-level")).
		SetComponent("xlogpipe").
		Build()
	if err != nil {
		return nil, nil, newUsageError("--diag-level: %v", err)
	}
	return l, cleanup, nil
}

// runPipeline 加载配置后把输入逐行提交给 logger，直到输入结束、收到信号或出错
func runPipeline(ctx context.Context, opts runOptions, in io.Reader, diag xlog.Logger) (err error) {
	reg := xregistry.New(xregistry.WithRegistryDiagnostics(diag))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.shutdownTimeout)
		defer cancel()
		err = errors.Join(err, reg.CloseAll(closeCtx))
	}()

	// 没有安装 OTel SDK 时全局 provider 为空实现
	obs, err := xmetrics.NewOTelObserver()
	if err != nil {
		return err
	}
	build := []xregistry.BuildOption{xregistry.WithDiagnostics(diag), xregistry.WithObserver(obs)}
	if opts.watch {
		w, werr := reg.LoadAndWatch(ctx, opts.configPath, xregistry.WithBuildOptions(build...))
		if werr != nil {
			return werr
		}
		defer func() { _ = w.Stop() }()
	} else {
		fc, _, lerr := xregistry.LoadFile(opts.configPath)
		if lerr != nil {
			return lerr
		}
		if aerr := reg.Apply(ctx, fc, build...); aerr != nil {
			return aerr
		}
	}
	if _, gerr := reg.Get(opts.loggerName); gerr != nil {
		return newUsageError("--logger: %v", gerr)
	}

	parser := lineParser{format: opts.format, level: opts.level, category: opts.category}
	services := []func(ctx context.Context) error{
		pump(in, func(ctx context.Context, line string) {
			// 热重载会替换 logger，每行重新查找
			l, gerr := reg.Get(opts.loggerName)
			if gerr != nil {
				diag.Warn(ctx, "logger missing, line dropped", xlog.LoggerName(opts.loggerName))
				return
			}
			level, msg, eopts, perr := parser.parse(line)
			if perr != nil {
				diag.Warn(ctx, "unparsable line dropped", xlog.Err(perr))
				return
			}
			l.Log(ctx, level, msg, eopts...)
		}),
	}
	if opts.statsInterval > 0 {
		services = append(services, xrun.Ticker(opts.statsInterval, false, func(ctx context.Context) error {
			reportStats(ctx, reg, diag)
			return nil
		}))
	}

	runOpts := []xrun.Option{xrun.WithName("xlogpipe"), xrun.WithLogger(diag)}
	if !opts.handleSignals {
		runOpts = append(runOpts, xrun.WithoutSignalHandler())
	}
	err = xrun.RunWithOptions(ctx, runOpts, services...)
	if errors.Is(err, errInputDone) || errors.Is(err, xrun.ErrSignal) {
		err = nil
	}
	if err == nil {
		reportStats(ctx, reg, diag)
	}
	return err
}

func reportStats(ctx context.Context, reg *xregistry.Registry, diag xlog.Logger) {
	for _, name := range reg.Names() {
		l, err := reg.Get(name)
		if err != nil {
			continue
		}
		st := l.Stats()
		diag.Info(ctx, "pipeline stats",
			xlog.LoggerName(name),
			slog.Uint64("enqueued", st.Enqueued),
			slog.Uint64("filtered", st.Filtered),
			slog.Uint64("dropped", st.Dropped),
			slog.Uint64("sink_errors", st.SinkErrors),
			slog.Uint64("handler_errors", st.HandlerErrors),
			slog.Int("pending", st.Pending),
		)
	}
}

// validateConfig 构建配置中的每个 logger 后立即关闭，逐个输出结果
func validateConfig(ctx context.Context, path string, out io.Writer, diag xlog.Logger) error {
	fc, _, err := xregistry.LoadFile(path)
	if err != nil {
		return err
	}
	if len(fc.Loggers) == 0 {
		return fmt.Errorf("xlogpipe: %s defines no loggers", path)
	}

	opts := []xregistry.BuildOption{xregistry.WithDiagnostics(diag)}
	if fc.LogDir != "" {
		opts = append(opts, xregistry.WithLogDir(fc.LogDir))
	}

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(fc.Loggers)) {
		pc := fc.Loggers[name]
		dc, berr := xregistry.Build(ctx, pc, opts...)
		if berr != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", name, berr)
			errs = append(errs, fmt.Errorf("%s: %w", name, berr))
			continue
		}
		var cerr error
		for _, s := range dc.Sinks {
			cerr = errors.Join(cerr, s.Close(ctx))
		}
		if cerr != nil {
			fmt.Fprintf(out, "FAIL %s: close: %v\n", name, cerr)
			errs = append(errs, fmt.Errorf("%s: %w", name, cerr))
			continue
		}
		fmt.Fprintf(out, "ok   %s (sinks=%d handlers=%d)\n", name, len(dc.Sinks), len(dc.Handlers))
	}
	return errors.Join(errs...)
}
