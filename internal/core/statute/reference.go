package statute

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultLaws は小文字のファイル名略称から正式な略称への対応
var DefaultLaws = map[string]string{
	"estg": "EStG",
	"ustg": "UStG",
	"abgb": "ABGB",
}

var (
	fileNamePattern   = regexp.MustCompile(`^([a-z]+)_(\d+[a-z]?)\.txt$`)
	subsectionLeading = regexp.MustCompile(`^\((\d+[a-z]?)\)`)
	sectionInRef      = regexp.MustCompile(`§\s*(\d+[a-z]?)`)
)

// Reference はファイル名から導出される法令参照
type Reference struct {
	Law     string // 例: "EStG"
	Section string // 例: "35a"
}

// String は "EStG §35a" 形式で返す
func (r Reference) String() string {
	return fmt.Sprintf("%s §%s", r.Law, r.Section)
}

// WithSubsection は Absatz 付きの参照を返す（例: "EStG §35a Abs. 2"）
func (r Reference) WithSubsection(subsection string) string {
	return FullReference(r.String(), subsection)
}

// ParseLegalReference はファイル名から法令参照を導出する
// 同じファイル名に対して常に同じ結果を返す純粋関数
func ParseLegalReference(fileName string, laws map[string]string) (Reference, error) {
	if laws == nil {
		laws = DefaultLaws
	}

	base := strings.ToLower(filepath.Base(fileName))
	m := fileNamePattern.FindStringSubmatch(base)
	if m == nil {
		return Reference{}, fmt.Errorf("%w: %s", ErrUnsupportedFileName, fileName)
	}

	law, ok := laws[m[1]]
	if !ok {
		return Reference{}, fmt.Errorf("%w: %s", ErrUnknownLaw, m[1])
	}

	return Reference{Law: law, Section: m[2]}, nil
}

// DetectSubsection はテキスト先頭の Absatz マーカー "(N)" を検出する
func DetectSubsection(text string) (string, bool) {
	m := subsectionLeading.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FullReference は参照に Absatz を付加する
func FullReference(legalReference, subsection string) string {
	if subsection == "" {
		return legalReference
	}
	return legalReference + " Abs. " + subsection
}

// SectionOf は "EStG §35a" 形式の参照から Paragraph 番号を取り出す
func SectionOf(legalReference string) (string, bool) {
	m := sectionInRef.FindStringSubmatch(legalReference)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LawOf は参照の法令略称部分を返す（"EStG §35a" → "EStG"）
func LawOf(legalReference string) string {
	i := strings.Index(legalReference, "§")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(legalReference[:i])
}
