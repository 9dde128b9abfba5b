package llm

import (
	"context"

	"github.com/jinford/steuer-rag/internal/core/resilience"
)

// RetryingEmbedder は一時的な失敗をリトライする Embedder
// インデックス作成のバッチ処理で使う
type RetryingEmbedder struct {
	next    Embedder
	retrier *resilience.Retrier
}

// NewRetryingEmbedder は next の呼び出しを retrier で包む
func NewRetryingEmbedder(next Embedder, retrier *resilience.Retrier) *RetryingEmbedder {
	return &RetryingEmbedder{next: next, retrier: retrier}
}

// Embed は単一テキストの Embedding を生成する
func (e *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return resilience.Call(ctx, e.retrier, "embed", func(ctx context.Context) ([]float32, error) {
		return e.next.Embed(ctx, text)
	})
}

// BatchEmbed はバッチで Embedding を生成する
func (e *RetryingEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return resilience.Call(ctx, e.retrier, "batch_embed", func(ctx context.Context) ([][]float32, error) {
		return e.next.BatchEmbed(ctx, texts)
	})
}

// MaxBatchSize は内側の最大バッチサイズを返す
func (e *RetryingEmbedder) MaxBatchSize() int {
	return e.next.MaxBatchSize()
}

// ModelName は内側のモデル名を返す
func (e *RetryingEmbedder) ModelName() string {
	return e.next.ModelName()
}

var _ Embedder = (*RetryingEmbedder)(nil)
