package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"stock_radar/internal/config"
	"stock_radar/internal/database"
)

// RetryPolicy 重试策略：最大尝试次数、指数退避、可重试/致命错误区分
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// NewBackOff 为空时使用指数退避
	NewBackOff func() backoff.BackOff

	logger *zap.Logger
}

// NewRetryPolicy 按同步配置创建重试策略
func NewRetryPolicy(cfg *config.SyncConfig, logger *zap.Logger) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     cfg.MaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		logger:          logger,
	}
}

// Fatal 致命错误不重试：本地存储故障、调用方取消
func (p *RetryPolicy) Fatal(err error) bool {
	return errors.Is(err, database.ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (p *RetryPolicy) backOff() backoff.BackOff {
	if p.NewBackOff != nil {
		return p.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// Do 执行 op，失败按退避间隔重试，直到成功、遇到致命错误或次数耗尽
func (p *RetryPolicy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op(ctx)
		if err != nil && p.Fatal(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			if p.logger != nil {
				p.logger.Warn("操作失败，准备重试",
					zap.String("op", name),
					zap.Duration("backoff", next),
					zap.Error(err))
			}
		}),
	)
	return err
}
