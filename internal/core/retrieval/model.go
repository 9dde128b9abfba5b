package retrieval

import (
	"context"
	"errors"

	"github.com/jinford/steuer-rag/internal/core/statute"
)

var (
	// ErrIndexUnavailable はリトライ後もインデックスを読み込めなかった場合の致命的エラー
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrIndexNotFound は永続化インデックスが存在しない場合に Opener が返す
	ErrIndexNotFound = errors.New("index not found")

	// ErrEmptyQuery はクエリが空の場合に返される
	ErrEmptyQuery = errors.New("query is required")

	// ErrDimensionMismatch はクエリベクトルとインデックスの次元が異なる場合に返される
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Candidate は1クエリに対する検索候補。ターンが終われば破棄される
type Candidate struct {
	Chunk    statute.Chunk
	Rank     int     // 0 が最も近い
	Distance float64 // 小さいほど類似
}

// Hit はインデックスが返す1件の近傍
type Hit struct {
	Chunk    statute.Chunk
	Distance float64
}

// Index は読み込み済みの最近傍インデックス
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

// Opener は永続化インデックスを開く
type Opener interface {
	Open(ctx context.Context) (Index, error)
}

// OpenerFunc は関数を Opener として扱う
type OpenerFunc func(ctx context.Context) (Index, error)

// Open は f を呼び出す
func (f OpenerFunc) Open(ctx context.Context) (Index, error) {
	return f(ctx)
}

// Embedder はクエリをベクトルに変換する
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
