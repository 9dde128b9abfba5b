package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jinford/steuer-rag/internal/core/llm"
	"github.com/jinford/steuer-rag/internal/core/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, llm.ErrAPIKeyNotSet)

	_, err = NewEmbedder("")
	assert.ErrorIs(t, err, llm.ErrAPIKeyNotSet)
}

func TestClient_Complete(t *testing.T) {
	var body map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":0,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Antwort nach §20 EStG \n"}}]}`)
	})

	client, err := NewClient("key", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), llm.CompletionRequest{User: "Frage", Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "Antwort nach §20 EStG", got)

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 1, "system メッセージは空なら送らない")
	assert.Equal(t, "gpt-4o-mini", body["model"])
}

func TestClient_Complete_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   resilience.Kind
	}{
		{"レート制限", http.StatusTooManyRequests, resilience.KindRateLimit},
		{"サーバーエラー", http.StatusServiceUnavailable, resilience.KindAPIError},
		{"リクエストタイムアウト", http.StatusRequestTimeout, resilience.KindTimeout},
		{"認証エラー", http.StatusUnauthorized, resilience.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"failure","type":"error"}}`)
			})

			client, err := NewClient("key", WithBaseURL(srv.URL+"/"))
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), llm.CompletionRequest{System: "s", User: "u"})
			require.Error(t, err)
			assert.Equal(t, tt.want, resilience.KindOf(err))
			assert.Equal(t, 1, calls, "SDK 側でリトライしない")
		})
	}
}

func TestClient_Complete_EmptyChoices(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":0,"model":"m","choices":[]}`)
	})

	client, err := NewClient("key", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.CompletionRequest{User: "u"})
	assert.Equal(t, resilience.KindInvalidResponse, resilience.KindOf(err))
	assert.True(t, errors.Is(err, llm.ErrEmptyCompletion))
}

func TestEmbedder_BatchEmbed_RestoresInputOrder(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-3-small","usage":{"prompt_tokens":2,"total_tokens":2},
			"data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}]}`)
	})

	embedder, err := NewEmbedder("key", WithEmbeddingBaseURL(srv.URL+"/"), WithEmbeddingDimension(2))
	require.NoError(t, err)

	got, err := embedder.BatchEmbed(context.Background(), []string{"erste", "zweite"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
	assert.Equal(t, 2, embedder.Dimension())
}

func TestEmbedder_BatchEmbed_Limits(t *testing.T) {
	embedder, err := NewEmbedder("key")
	require.NoError(t, err)

	_, err = embedder.BatchEmbed(context.Background(), nil)
	assert.Error(t, err)

	_, err = embedder.BatchEmbed(context.Background(), make([]string, maxBatchSize+1))
	assert.Error(t, err)
}

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
	assert.Equal(t, 100, embedder.MaxBatchSize())
}
