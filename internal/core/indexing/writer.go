package indexing

import (
	"context"

	"github.com/jinford/steuer-rag/internal/core/statute"
)

// Record はインデックスに書き込む1チャンク分のデータ
type Record struct {
	Chunk  statute.Chunk
	Vector []float32
}

// Writer は永続化インデックスの書き込み先
// テスト時のモック用に消費者側で定義
type Writer interface {
	// Reset は既存のインデックスを破棄し、指定次元で作り直す
	Reset(ctx context.Context, dimension int) error

	// Write はレコードを追加する
	Write(ctx context.Context, records []Record) error

	// Backend はログ出力用の書き込み先の名前を返す
	Backend() string
}
