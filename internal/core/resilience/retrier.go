package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Retrier は Policy に従って任意の外部呼び出しを再試行する
type Retrier struct {
	policy Policy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

// RetrierOption は Retrier のオプション設定
type RetrierOption func(*Retrier)

// WithRetrierLogger はロガーを設定する
func WithRetrierLogger(logger *slog.Logger) RetrierOption {
	return func(r *Retrier) {
		r.logger = logger
	}
}

// WithSleep は待機処理を差し替える（テスト用）
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) {
		r.sleep = sleep
	}
}

// WithRandom は乱数源を差し替える
func WithRandom(random func() float64) RetrierOption {
	return func(r *Retrier) {
		r.random = random
	}
}

// NewRetrier は新しい Retrier を作成する
func NewRetrier(policy Policy, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		policy: policy,
		logger: slog.Default(),
		sleep:  sleepContext,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Policy は設定されたリトライ方針を返す
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do は fn を最大 MaxAttempts 回まで実行する
// 失敗した試行ごとに1回だけログを出力する
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call は Retrier の方針で fn を実行し、結果を返す
func Call[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := r.policy.attempts()

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		retryable := r.policy.retryable(err)
		r.logger.Warn("external call failed",
			"op", op,
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"kind", string(KindOf(err)),
			"retryable", retryable,
			"error", err,
		)

		if !retryable {
			return zero, err
		}
		if attempt >= maxAttempts {
			return zero, fmt.Errorf("%s: gave up after %d attempts: %w", op, attempt, err)
		}

		if sleepErr := r.sleep(ctx, r.policy.Delay(attempt, r.random())); sleepErr != nil {
			return zero, fmt.Errorf("%s: retry wait interrupted: %w", op, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
