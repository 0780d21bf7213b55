package xhandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
)

const (
	// DefaultSubject 默认邮件标题模板
	DefaultSubject = "日志通知: {{.Level}} - {{.Time}}"

	// DefaultSMTPPort 默认 SMTP 端口
	DefaultSMTPPort = 587

	mailTimeLayout = "2006-01-02 15:04:05"
)

var (
	// ErrMissingHost 未配置 SMTP 主机
	ErrMissingHost = errors.New("xhandler: missing smtp host")

	// ErrMissingRecipient 没有收件人
	ErrMissingRecipient = errors.New("xhandler: missing recipient")

	// ErrMissingSender 没有发件人
	ErrMissingSender = errors.New("xhandler: missing sender")

	// ErrInvalidSubject 标题模板无法解析
	ErrInvalidSubject = errors.New("xhandler: invalid subject template")
)

// MailConfig SMTP 通知配置
type MailConfig struct {
	Host     string       `koanf:"host"`
	Port     int          `koanf:"port"`
	Username string       `koanf:"username"`
	Password string       `koanf:"password"`
	From     string       `koanf:"from"`
	To       []string     `koanf:"to"`
	Level    xlevel.Level `koanf:"level"`
	Subject  string       `koanf:"subject"`
}

// SendFunc 发送函数，签名与 smtp.SendMail 一致
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailOption Mail 配置选项
type MailOption func(*Mail)

// WithSendFunc 替换发送实现，测试中用于捕获邮件
func WithSendFunc(fn SendFunc) MailOption {
	return func(m *Mail) {
		if fn != nil {
			m.send = fn
		}
	}
}

// Mail 对达到阈值的条目发送 SMTP 通知。
//
// 阈值规则与 [Threshold] 相同。发送失败返回错误，由 dispatch 计数并写诊断日志。
type Mail struct {
	cfg     MailConfig
	addr    string
	auth    smtp.Auth
	subject *template.Template
	send    SendFunc
}

// NewMail 校验配置并创建 Mail handler
func NewMail(cfg MailConfig, opts ...MailOption) (*Mail, error) {
	if cfg.Host == "" {
		return nil, ErrMissingHost
	}
	if cfg.From == "" {
		return nil, ErrMissingSender
	}
	if len(cfg.To) == 0 {
		return nil, ErrMissingRecipient
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if !cfg.Level.IsValid() {
		cfg.Level = xlevel.Error
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	tmpl, err := template.New("subject").Option("missingkey=zero").Parse(cfg.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubject, err)
	}

	m := &Mail{
		cfg:     cfg,
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		subject: tmpl,
		send:    smtp.SendMail,
	}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

func (m *Mail) Name() string { return "mail:" + m.addr }

func (m *Mail) ShouldHandle(e *xentry.Entry) bool {
	return MatchLevel(m.cfg.Level, e)
}

// subjectData 标题模板可用字段
type subjectData struct {
	Level    string
	Time     string
	Category string
	Message  string
}

// Handle 渲染并发送一封邮件。net/smtp 不接受 ctx，ctx 已取消时直接返回。
func (m *Mail) Handle(ctx context.Context, e *xentry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := m.render(e)
	if err != nil {
		return err
	}
	if err := m.send(m.addr, m.auth, m.cfg.From, m.cfg.To, msg); err != nil {
		return fmt.Errorf("xhandler: send mail via %s: %w", m.addr, err)
	}
	return nil
}

func (m *Mail) render(e *xentry.Entry) ([]byte, error) {
	ts := e.Timestamp.Format(mailTimeLayout)
	var subject bytes.Buffer
	err := m.subject.Execute(&subject, subjectData{
		Level:    e.Level.String(),
		Time:     ts,
		Category: e.Category,
		Message:  e.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubject, err)
	}

	category := e.Category
	if category == "" {
		category = "未指定"
	}
	exception := e.ErrorText()
	if exception == "" {
		exception = "无"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.ReplaceAll(subject.String(), "\n", " "))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "时间: %s\r\n", ts)
	fmt.Fprintf(&b, "级别: %s\r\n", e.Level)
	fmt.Fprintf(&b, "类别: %s\r\n", category)
	fmt.Fprintf(&b, "消息: %s\r\n", e.Message)
	fmt.Fprintf(&b, "异常: %s\r\n", exception)
	return []byte(b.String()), nil
}
