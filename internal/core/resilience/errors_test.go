package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name            string
		err             error
		wantKind        Kind
		wantTransient   bool
		wantRecoverable bool
	}{
		{name: "レート制限", err: Wrap(KindRateLimit, "generate", base), wantKind: KindRateLimit, wantTransient: true, wantRecoverable: true},
		{name: "API エラー", err: Wrap(KindAPIError, "generate", base), wantKind: KindAPIError, wantTransient: true, wantRecoverable: false},
		{name: "接続エラー", err: Wrap(KindConnection, "embed", base), wantKind: KindConnection, wantTransient: true, wantRecoverable: true},
		{name: "上流タイムアウト", err: Wrap(KindTimeout, "embed", base), wantKind: KindTimeout, wantTransient: true, wantRecoverable: true},
		{name: "不正なレスポンス", err: Wrap(KindInvalidResponse, "generate", base), wantKind: KindInvalidResponse},
		{name: "ラップされた種類付きエラー", err: fmt.Errorf("outer: %w", Wrap(KindRateLimit, "x", base)), wantKind: KindRateLimit, wantTransient: true, wantRecoverable: true},
		{name: "context の期限切れ", err: fmt.Errorf("call: %w", context.DeadlineExceeded), wantKind: KindTimeout, wantTransient: true, wantRecoverable: true},
		{name: "ハードタイムアウト", err: ErrHardTimeout, wantKind: KindTimeout, wantTransient: true, wantRecoverable: true},
		{name: "分類不能", err: base, wantKind: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, KindOf(tt.err))
			assert.Equal(t, tt.wantTransient, IsTransient(tt.err))
			assert.Equal(t, tt.wantRecoverable, IsRecoverable(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(KindRateLimit, "op", nil))

	base := errors.New("429 Too Many Requests")
	err := Wrap(KindRateLimit, "generate", base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "generate: rate_limit: 429 Too Many Requests", err.Error())
}
