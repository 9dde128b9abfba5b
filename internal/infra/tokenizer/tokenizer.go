// Package tokenizer はプロンプトのトークン数を数える
package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding は OpenAI のチャットモデルと互換のエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter は tiktoken を利用したトークンカウンタ
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// New は指定エンコーディングの Counter を作成する。encoding が空なら DefaultEncoding を使う
func New(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &Counter{encoding: enc}, nil
}

// Count はテキストのトークン数を返す
func (c *Counter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// Approximate はエンコーディングを読み込めない環境向けの概算カウンタ
// 4文字を1トークンとみなす
type Approximate struct{}

// Count はテキストのトークン数の概算を返す
func (Approximate) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
