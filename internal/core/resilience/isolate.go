package resilience

import (
	"context"
	"time"
)

// RunIsolated は fn を別ゴルーチンで実行し、timeout を超えたら ErrHardTimeout を返す
// タイムアウト時はワーカー側の context をキャンセルし、遅れて届いた結果は破棄する
func RunIsolated[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	// バッファ付きなので放棄されたワーカーも送信でブロックしない
	done := make(chan result, 1)

	go func() {
		v, err := fn(workerCtx)
		done <- result{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		return zero, ErrHardTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
