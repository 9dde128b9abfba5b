package resilience

import (
	"math"
	"time"
)

const (
	// DefaultMaxAttempts は既定の最大試行回数
	DefaultMaxAttempts = 5
	// DefaultBaseDelay は Exponential Backoff の基底時間
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay は Exponential Backoff の最大待機時間
	DefaultMaxDelay = 60 * time.Second
	// DefaultJitter は待機時間に加えるランダム幅の比率
	DefaultJitter = 0.5
)

// Policy はリトライ方針
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64          // 0〜1
	Retryable   func(error) bool // nil の場合は IsTransient
}

// DefaultPolicy は既定のリトライ方針を返す
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
		Retryable:   IsTransient,
	}
}

// Delay は attempt 回目の失敗後の待機時間を返す（attempt は 1 始まり）
// r は [0, 1) の乱数。base*2^(n-1)*(1+jitter*r) を MaxDelay で頭打ちにする
// jitter が 1 以下なら待機時間は attempt に対して単調非減少になる
func (p Policy) Delay(attempt int, r float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	jitter := math.Min(math.Max(p.Jitter, 0), 1)
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	d += d * jitter * r

	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsTransient(err)
	}
	return p.Retryable(err)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
