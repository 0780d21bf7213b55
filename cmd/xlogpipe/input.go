package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xdispatch"
)

const (
	formatText = "text"
	formatJSON = "json"

	// maxLineSize 单行上限，超出时扫描失败
	maxLineSize = 1 << 20
)

// pump 逐行读取 in 并调用 submit。输入结束返回 errInputDone。
//
// 读取在独立 goroutine 中进行，ctx 取消时立即返回；阻塞在 Read 上的 goroutine
// 在 in 关闭（进程退出）时结束。
func pump(in io.Reader, submit func(ctx context.Context, line string)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		lines := make(chan string)
		scanErr := make(chan error, 1)
		go func() {
			defer close(lines)
			sc := bufio.NewScanner(in)
			sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
			for sc.Scan() {
				select {
				case lines <- sc.Text():
				case <-ctx.Done():
					return
				}
			}
			scanErr <- sc.Err()
		}()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case line, ok := <-lines:
				if !ok {
					select {
					case err := <-scanErr:
						if err != nil {
							return fmt.Errorf("xlogpipe: read input: %w", err)
						}
					default:
					}
					return errInputDone
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				submit(ctx, line)
			}
		}
	}
}

// lineParser 把一行输入转换为日志条目参数
type lineParser struct {
	format   string
	level    xlevel.Level
	category string
}

// jsonLine json 输入格式，字段与 xentry.Record 对应
type jsonLine struct {
	Level      string         `json:"level"`
	Category   string         `json:"category"`
	Message    string         `json:"message"`
	Exception  string         `json:"exception"`
	Properties map[string]any `json:"properties"`
}

func (p lineParser) parse(line string) (xlevel.Level, string, []xdispatch.EntryOption, error) {
	var opts []xdispatch.EntryOption
	if p.category != "" {
		opts = append(opts, xdispatch.WithCategory(p.category))
	}
	if p.format == formatJSON {
		return p.parseJSON(line, opts)
	}
	level, msg := p.splitLevel(line)
	return level, msg, opts, nil
}

// splitLevel 识别 "[Warning] message" 形式的级别前缀，无法识别时整行作为消息
func (p lineParser) splitLevel(line string) (xlevel.Level, string) {
	if !strings.HasPrefix(line, "[") {
		return p.level, line
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return p.level, line
	}
	level, err := xlevel.ParseLevel(line[1:end])
	if err != nil {
		return p.level, line
	}
	return level, strings.TrimSpace(line[end+1:])
}

func (p lineParser) parseJSON(line string, opts []xdispatch.EntryOption) (xlevel.Level, string, []xdispatch.EntryOption, error) {
	var jl jsonLine
	if err := json.Unmarshal([]byte(line), &jl); err != nil {
		return xlevel.Level{}, "", nil, fmt.Errorf("decode json line: %w", err)
	}
	level := p.level
	if jl.Level != "" {
		l, err := xlevel.ParseLevel(jl.Level)
		if err != nil {
			return xlevel.Level{}, "", nil, err
		}
		level = l
	}
	if jl.Category != "" {
		opts = append(opts, xdispatch.WithCategory(jl.Category))
	}
	if jl.Exception != "" {
		opts = append(opts, xdispatch.WithError(errors.New(jl.Exception)))
	}
	if len(jl.Properties) > 0 {
		opts = append(opts, xdispatch.WithProperties(jl.Properties))
	}
	return level, jl.Message, opts, nil
}
