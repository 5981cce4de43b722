// Package retry 提供连接重建使用的指数退避重试器。
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Unlimited 表示不限制重试次数。
const Unlimited = -1

// Policy 定义重试策略
type Policy struct {
	MaxRetries      int                                               // 最大重试次数（0 不重试，Unlimited 无上限）
	InitialDelay    time.Duration                                     // 初始延迟时间
	MaxDelay        time.Duration                                     // 最大延迟时间
	Multiplier      float64                                           // 延迟倍增因子
	Jitter          bool                                              // 是否添加 ±25% 随机抖动
	RetryableErrors []error                                           // 可重试的错误（为空则重试所有错误）
	OnRetry         func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultPolicy 返回默认策略：1s 起步，倍增，封顶 30s，无次数上限。
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   Unlimited,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 重试器
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// New 创建指数退避重试器，非法参数回落到默认值。
func New(policy *Policy, logger *zap.Logger) *Retryer {
	p := DefaultPolicy()
	if policy != nil {
		cp := *policy
		p = &cp
	}
	if p.MaxRetries < Unlimited {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: *p, logger: logger}
}

// Policy 返回归一化后的策略副本。
func (r *Retryer) Policy() Policy { return r.policy }

// Do 执行 fn，失败时按策略等待后重试。fn 收到从 0 开始的尝试序号。
func (r *Retryer) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := r.Delay(attempt)

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}

		if !r.isRetryable(lastErr) {
			r.logger.Debug("error is not retryable", zap.Error(lastErr))
			return lastErr
		}

		if r.policy.MaxRetries != Unlimited && attempt >= r.policy.MaxRetries {
			break
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed after %d retries: %w", r.policy.MaxRetries, lastErr)
}

// Delay 计算第 attempt 次重试前的等待：initial * multiplier^(attempt-1)，封顶 MaxDelay。
func (r *Retryer) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}

	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}

func (r *Retryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if len(r.policy.RetryableErrors) == 0 {
		return true
	}
	for _, retryable := range r.policy.RetryableErrors {
		if errors.Is(err, retryable) {
			return true
		}
	}
	return false
}
