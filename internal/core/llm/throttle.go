package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ThrottledCompleter はレート制限付きの Completer
type ThrottledCompleter struct {
	next      Completer
	limiter   *rate.Limiter
	perMinute int
}

// NewThrottledCompleter は1分あたり perMinute 回に制限した Completer を返す
// バースト上限も perMinute とし、起動直後は1分分の呼び出しをまとめて許可する
func NewThrottledCompleter(next Completer, perMinute int) *ThrottledCompleter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &ThrottledCompleter{
		next:      next,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		perMinute: perMinute,
	}
}

// Complete はレート制限に従ってモデルを呼び出す
func (c *ThrottledCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return c.next.Complete(ctx, req)
}

// ModelName は内側のモデル名を返す
func (c *ThrottledCompleter) ModelName() string {
	return c.next.ModelName()
}

// Status はレート制限の状態を返す
func (c *ThrottledCompleter) Status() ThrottleStatus {
	return ThrottleStatus{
		PerMinute: c.perMinute,
		Available: c.limiter.Tokens(),
	}
}

// ThrottleStatus はレート制限の状態
type ThrottleStatus struct {
	PerMinute int
	Available float64
}

func (s ThrottleStatus) String() string {
	return fmt.Sprintf("ratelimit: %d/min available=%.1f", s.PerMinute, s.Available)
}

var _ Completer = (*ThrottledCompleter)(nil)
