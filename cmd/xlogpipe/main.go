// xlogpipe 把标准输入的每一行送入声明式配置的日志管线。
//
// 用法:
//
//	xlogpipe [全局选项] <命令> [命令参数]
//
// 命令:
//
//	run        读取标准输入，按配置中的 logger 分发，直到输入结束或收到信号
//	validate   解析配置并逐个构建 logger，报告错误
//
// 退出码:
//
//	0: 成功（run: 输入结束或收到 SIGINT/SIGTERM 后正常关闭）
//	1: 配置错误或运行失败
//	2: 参数错误
//
// 示例:
//
//	tail -F app.out | xlogpipe run -c pipeline.yaml -l orders --watch
//	xlogpipe run -c pipeline.yaml -l audit --format json < events.ndjson
//	xlogpipe validate -c pipeline.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// 版本信息，可通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func createApp(in io.Reader, out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xlogpipe",
		Usage:     "把标准输入送入日志管线",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "管线配置文件（.yaml/.yml/.json）",
				Sources:  cli.EnvVars("XLOGPIPE_CONFIG"),
				Required: true,
			},
			&cli.StringFlag{
				Name:  "diag-level",
				Usage: "诊断日志级别 (debug/info/warn/error)",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			createRunCommand(),
			createValidateCommand(),
		},
		// 退出码统一由 run 映射
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	app := createApp(in, out, errOut)
	if err := app.Run(ctx, args); err != nil {
		var usage *usageError
		if errors.As(err, &usage) || isCLIUsageError(err) {
			fmt.Fprintf(errOut, "参数错误: %v\n", err)
			return 2
		}
		fmt.Fprintf(errOut, "错误: %v\n", err)
		return 1
	}
	return 0
}

// usageError 命令参数不合法
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// isCLIUsageError 识别 urfave/cli 解析参数时产生的错误
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"flag provided but not defined",
		"Required flag",
		"invalid value",
		"No help topic",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
