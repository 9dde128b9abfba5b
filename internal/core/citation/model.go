package citation

import "github.com/jinford/steuer-rag/internal/core/retrieval"

const (
	// DefaultMinOverlapWords は Absatz 取り違えと判定する共通内容語数の下限
	DefaultMinOverlapWords = 3
	// DefaultMinOverlapRatio は Absatz 取り違えと判定する共通内容語の割合の下限
	DefaultMinOverlapRatio = 0.2
	// DefaultMinListItemSubsection は Nummer の取り違えを疑う Absatz 番号の下限
	DefaultMinListItemSubsection = 5
)

// Thresholds は照合の閾値。経験的な値のため設定で調整できる
type Thresholds struct {
	MinOverlapWords       int
	MinOverlapRatio       float64
	MinListItemSubsection int
}

// DefaultThresholds は既定の閾値を返す
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOverlapWords:       DefaultMinOverlapWords,
		MinOverlapRatio:       DefaultMinOverlapRatio,
		MinListItemSubsection: DefaultMinListItemSubsection,
	}
}

// SelectionReason は候補を選んだ根拠
type SelectionReason string

const (
	SelectedNoCitation SelectionReason = "no_citation"
	SelectedExact      SelectionReason = "exact_section"
	SelectedSubsection SelectionReason = "subsection_confusion"
	SelectedFallback   SelectionReason = "fallback"
)

// Selection は回答が根拠とした候補の推定結果
type Selection struct {
	Candidate retrieval.Candidate
	Reason    SelectionReason
	Cited     string // 判定に使った引用番号。根拠なしの場合は空
	Overlap   int
	Ratio     float64
}

// RepairKind は引用修正の種類
type RepairKind string

const (
	RepairNone        RepairKind = "none"
	RepairSubsection  RepairKind = "absatz_confusion"
	RepairListItem    RepairKind = "nummer_as_absatz"
	RepairUnclear     RepairKind = "unclear_no_fix"
	RepairNoCitation  RepairKind = "no_citation"
	RepairNoReference RepairKind = "no_reference"
)

// Repair は引用修正の結果
type Repair struct {
	Answer      string
	Kind        RepairKind
	Original    string // 修正前の引用文字列
	Replacement string // 修正後の引用文字列
	Subsection  string // 修正後に確定した Absatz 番号
}

// Changed は回答テキストが書き換えられたかを返す
func (r Repair) Changed() bool {
	return r.Kind == RepairSubsection || r.Kind == RepairListItem
}
