package indexing

import "context"

// Embedder はチャンクをベクトル表現に変換するインターフェース
type Embedder interface {
	// BatchEmbed はバッチでEmbeddingを生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize は1回の呼び出しで渡せる最大件数を返す
	MaxBatchSize() int

	// ModelName はモデル名を返す
	ModelName() string
}
