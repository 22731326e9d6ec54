// Package retry 提供指数退避与有限重试
package retry

import (
	"context"
	"time"

	"w4u-wizard-api/internal/config"
)

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 默认退避配置
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// FromConfig 从配置构建退避参数，缺省字段使用默认值
func FromConfig(cfg config.BackoffConfig) BackoffConfig {
	b := BackoffConfig{
		Initial:    cfg.Initial,
		Max:        cfg.Max,
		Multiplier: cfg.Multiplier,
	}
	def := DefaultBackoffConfig()
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	return b
}

// CalculateBackoff 计算退避时间
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			backoff = c.Max
			break
		}
	}
	return backoff
}

// Permanent 包装不应重试的错误
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }

func (p *Permanent) Unwrap() error { return p.Err }

// Do 执行 fn，失败时按退避重试最多 maxRetries 次
// fn 返回 *Permanent 时立即停止；ctx 取消时返回最后一次错误
func Do(ctx context.Context, maxRetries int, backoff BackoffConfig, fn func(attempt int) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}
		if p, ok := err.(*Permanent); ok {
			return p.Err
		}
		if attempt == maxRetries {
			break
		}

		timer := time.NewTimer(backoff.CalculateBackoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
