package llm

import (
	"context"
	"errors"
)

var (
	// ErrAPIKeyNotSet は API キーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("API key not set")

	// ErrEmptyCompletion はモデルが空の応答を返した場合のエラー
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrEmptyEmbedding は Embedding が生成されなかった場合のエラー
	ErrEmptyEmbedding = errors.New("no embeddings generated")
)

// CompletionRequest はモデルへの生成リクエスト
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
}

// Completer はテキスト生成モデルのインターフェース
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	ModelName() string
}

// Embedder はテキストをベクトル表現に変換するインターフェース
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatchSize() int
	ModelName() string
}
