package xbatch

import (
	"context"
	"errors"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker/v2"
)

// Policy 批次发送的可选保护策略，零值表示不重试、不熔断
type Policy struct {
	Retry   *RetryConfig   `koanf:"retry"`
	Breaker *BreakerConfig `koanf:"breaker"`
}

// RetryConfig 重试配置，Attempts 包含首次发送
type RetryConfig struct {
	Attempts uint          `koanf:"attempts"`
	Delay    time.Duration `koanf:"delay"`
	MaxDelay time.Duration `koanf:"max_delay"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	// ConsecutiveFailures 连续失败多少个批次后熔断
	ConsecutiveFailures uint32 `koanf:"consecutive_failures"`

	// OpenTimeout 熔断打开后多久进入半开状态
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

const (
	defaultRetryDelay          = 100 * time.Millisecond
	defaultConsecutiveFailures = 5
	defaultOpenTimeout         = 30 * time.Second
)

// guard 组装好的策略执行器
type guard struct {
	retry   []retry.Option
	breaker *gobreaker.TwoStepCircuitBreaker[struct{}]
}

func newGuard(name string, p Policy) *guard {
	g := &guard{}
	if r := p.Retry; r != nil && r.Attempts > 1 {
		delay := r.Delay
		if delay <= 0 {
			delay = defaultRetryDelay
		}
		g.retry = []retry.Option{
			retry.Attempts(r.Attempts),
			retry.Delay(delay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests)
			}),
		}
		if r.MaxDelay > 0 {
			g.retry = append(g.retry, retry.MaxDelay(r.MaxDelay))
		}
	}
	if b := p.Breaker; b != nil {
		failures := b.ConsecutiveFailures
		if failures == 0 {
			failures = defaultConsecutiveFailures
		}
		timeout := b.OpenTimeout
		if timeout <= 0 {
			timeout = defaultOpenTimeout
		}
		g.breaker = gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		})
	}
	return g
}

// do 执行一次发送：每次尝试都经过熔断器，熔断打开时不再重试
func (g *guard) do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := func() error {
		if g.breaker == nil {
			return fn(ctx)
		}
		done, err := g.breaker.Allow()
		if err != nil {
			return err
		}
		err = fn(ctx)
		done(err)
		return err
	}
	if len(g.retry) == 0 {
		return attempt()
	}
	opts := append([]retry.Option{retry.Context(ctx)}, g.retry...)
	return retry.New(opts...).Do(attempt)
}

// state 熔断器状态，未启用时返回空字符串
func (g *guard) state() string {
	if g.breaker == nil {
		return ""
	}
	return g.breaker.State().String()
}
