package resilience

import (
	"context"
	"errors"
	"fmt"
)

// Kind は外部呼び出しの失敗の種類を表す
type Kind string

const (
	// KindRateLimit はレート制限エラー
	KindRateLimit Kind = "rate_limit"
	// KindAPIError は上流 API のサーバーエラー
	KindAPIError Kind = "api_error"
	// KindTimeout は上流のタイムアウト
	KindTimeout Kind = "timeout"
	// KindConnection は接続エラー
	KindConnection Kind = "connection"
	// KindInvalidResponse は不正なレスポンス形式
	KindInvalidResponse Kind = "invalid_response"
	// KindUnknown は分類できないエラー
	KindUnknown Kind = "unknown"
)

// Transient は自動リトライ対象の種類かを返す
func (k Kind) Transient() bool {
	switch k {
	case KindRateLimit, KindAPIError, KindTimeout, KindConnection:
		return true
	default:
		return false
	}
}

// Recoverable はリトライ枯渇後もユーザーに即時再試行を促せる種類かを返す
func (k Kind) Recoverable() bool {
	switch k {
	case KindRateLimit, KindConnection, KindTimeout:
		return true
	default:
		return false
	}
}

var (
	// ErrHardTimeout は壁時計タイムアウトを超過した場合に返される
	// 上流 API 自体のタイムアウトとは区別される
	ErrHardTimeout = errors.New("hard timeout exceeded")
)

// Error は種類付きの外部呼び出しエラー
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap は err に種類を付与する。err が nil の場合は nil を返す
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf は err の種類を返す
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	switch {
	case errors.Is(err, ErrHardTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnknown
	}
}

// IsTransient は err がリトライ対象かを返す
func IsTransient(err error) bool {
	return KindOf(err).Transient()
}

// IsRecoverable は err がユーザーにとって回復可能かを返す
func IsRecoverable(err error) bool {
	return KindOf(err).Recoverable()
}
