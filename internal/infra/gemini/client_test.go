package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jinford/steuer-rag/internal/core/llm"
	"github.com/jinford/steuer-rag/internal/core/resilience"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", "")
	assert.ErrorIs(t, err, llm.ErrAPIKeyNotSet)

	_, err = NewEmbedder(context.Background(), "", "", 0)
	assert.ErrorIs(t, err, llm.ErrAPIKeyNotSet)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want resilience.Kind
	}{
		{"レート制限", genai.APIError{Code: 429, Message: "quota"}, resilience.KindRateLimit},
		{"サーバーエラー", fmt.Errorf("call: %w", genai.APIError{Code: 503}), resilience.KindAPIError},
		{"不正なリクエスト", genai.APIError{Code: 400}, resilience.KindUnknown},
		{"期限切れ", context.DeadlineExceeded, resilience.KindTimeout},
		{"その他", errors.New("boom"), resilience.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.Equal(t, tt.want, resilience.KindOf(err))
			assert.Error(t, err)
		})
	}
}
