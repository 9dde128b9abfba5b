package gemini

import (
	"context"
	"fmt"

	"github.com/jinford/steuer-rag/internal/core/llm"
	"github.com/jinford/steuer-rag/internal/core/resilience"
	"google.golang.org/genai"
)

// Embedder は Gemini API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewEmbedder は新しい Embedder を作成する
// model が空の場合は DefaultEmbeddingModel、dimension が0以下の場合は DefaultEmbeddingDimension を使う
func NewEmbedder(ctx context.Context, apiKey, model string, dimension int) (*Embedder, error) {
	client, err := newGenAIClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimension
	}
	return &Embedder{client: client, model: model, dimension: dimension}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// BatchEmbed はバッチで Embedding を生成する
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), maxBatchSize)
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := int32(e.dimension)
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, classify("embed content", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, resilience.Wrap(resilience.KindInvalidResponse, "embed content",
			fmt.Errorf("%w: got %d for %d inputs", llm.ErrEmptyEmbedding, len(result.Embeddings), len(texts)))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return maxBatchSize
}

var _ llm.Embedder = (*Embedder)(nil)
