package quote

import (
	"context"
	"errors"
)

// DefaultMinLength はモデル抽出の引用として受け入れる最小文字数
const DefaultMinLength = 50

// ErrNoQuote は戦略が引用を返せなかった場合のエラー
var ErrNoQuote = errors.New("no quote available")

// Tier は引用を得た段階
type Tier string

const (
	TierModel      Tier = "model"
	TierRegistered Tier = "registered"
	TierGeneric    Tier = "generic"
)

// Request は引用抽出の入力
type Request struct {
	Query      string
	Answer     string
	SourceText string
	TaskID     int
}

// Result は引用抽出の結果。Text は常に空でない
type Result struct {
	Text string
	Tier Tier
}

// Strategy は引用を得る1つの手段
type Strategy interface {
	Tier() Tier
	Extract(ctx context.Context, req Request) (string, error)
}
