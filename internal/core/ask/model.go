package ask

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/mo"

	"github.com/jinford/steuer-rag/internal/core/answer"
	"github.com/jinford/steuer-rag/internal/core/quote"
	"github.com/jinford/steuer-rag/internal/core/statute"
)

var (
	// ErrEmptyQuery はクエリが空の場合に返される
	ErrEmptyQuery = errors.New("query is required")

	// ErrInvalidCondition は実験条件が不正な場合に返される
	ErrInvalidCondition = errors.New("invalid condition")
)

// Condition は実験条件。引用抽出を行うかどうかを決める
type Condition string

const (
	ConditionAugmented Condition = "augmented"
	ConditionMinimal   Condition = "minimal"
)

// ParseCondition は文字列から Condition を返す。空文字は minimal とする
func ParseCondition(s string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ConditionMinimal):
		return ConditionMinimal, nil
	case string(ConditionAugmented):
		return ConditionAugmented, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCondition, s)
	}
}

// Params は質問応答のパラメータを表す
type Params struct {
	Query     string        // ユーザーの質問文
	Condition Condition     // 実験条件
	History   []answer.Turn // 呼び出し側が保持する会話履歴
	TaskID    int           // 登録済み引用の選択にのみ使う
}

// Response は1ターン分の応答
// NoAnswer の場合 SelectedChunk と Quote は常に None
type Response struct {
	RequestID          string                   `json:"requestId"`
	Answer             string                   `json:"answer"`
	SelectedChunk      mo.Option[statute.Chunk] `json:"selectedChunk"`
	Quote              mo.Option[string]        `json:"quote"`
	QuoteTier          mo.Option[quote.Tier]    `json:"quoteTier"`
	LegalReference     mo.Option[string]        `json:"legalReference"`
	LegalReferenceFull mo.Option[string]        `json:"legalReferenceFull"`
	SourceURL          mo.Option[string]        `json:"sourceUrl"`
	NoAnswer           bool                     `json:"noAnswer"`
	Error              bool                     `json:"error"`
	Recoverable        bool                     `json:"recoverable"`
}

// Messages は劣化応答の文言
type Messages struct {
	NoAnswer string
	Busy     string
	Rephrase string
	Timeout  string
	Retry    string
}
