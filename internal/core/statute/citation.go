package statute

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	sectionMarker   = regexp.MustCompile(`§\s*(\d+[a-z]?)`)
	citationPattern = regexp.MustCompile(`§\s*(\d+[a-z]?)(?:\s+Abs\.\s*(\d+))?(?:\s+Satz\s*\d+)?(?:\s+Nr\.\s*\d+)?(?:\s+(?:EStG|UStG|ABGB))?`)
	firstSubsection = regexp.MustCompile(`\(1\)\s+`)
)

// Citation は回答テキスト中の引用を構造化した値
type Citation struct {
	Section    string // § の直後の番号（例: "20"）
	Subsection string // "Abs." の番号。ない場合は空
	Start      int    // 引用全体の開始バイト位置
	End        int    // 引用全体の終了バイト位置
}

// Raw は元テキスト中の引用文字列を返す
func (c Citation) Raw(text string) string {
	return text[c.Start:c.End]
}

// Replace は引用部分だけを置換したテキストを返す
func (c Citation) Replace(text, replacement string) string {
	return text[:c.Start] + replacement + text[c.End:]
}

// ParseCitation はテキスト中の最初の引用を解析する
func ParseCitation(text string) (Citation, bool) {
	loc := citationPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return Citation{}, false
	}

	c := Citation{
		Section: text[loc[2]:loc[3]],
		Start:   loc[0],
		End:     loc[1],
	}
	if loc[4] >= 0 {
		c.Subsection = text[loc[4]:loc[5]]
	}
	return c, true
}

// CitedSections はテキスト中の § の直後の番号を出現順に返す
func CitedSections(text string) []string {
	matches := sectionMarker.FindAllStringSubmatch(text, -1)
	sections := make([]string, 0, len(matches))
	for _, m := range matches {
		sections = append(sections, m[1])
	}
	return sections
}

// HasSubsectionMarker は行頭に "(N)" が現れるかを判定する
func HasSubsectionMarker(text, number string) bool {
	marker := "(" + number + ")"
	for line := range strings.SplitSeq(text, "\n") {
		if strings.HasPrefix(trimIndent(line), marker) {
			return true
		}
	}
	return false
}

func trimIndent(line string) string {
	return strings.TrimLeft(line, " \t\r\f")
}

// FirstSubsectionText は Absatz 1 の本文（"(1)" から次の行頭 "(2)" まで）を返す
func FirstSubsectionText(text string) (string, bool) {
	loc := firstSubsection.FindStringIndex(text)
	if loc == nil {
		return "", false
	}

	body := text[loc[1]:]
	if end := strings.Index(body, "\n(2)"); end >= 0 {
		body = body[:end]
	}
	return body, true
}

// HasListItemInFirstSubsection は Absatz 1 の中に行頭 "N. " の番号付き項目があるかを判定する
func HasListItemInFirstSubsection(text, number string) bool {
	body, ok := FirstSubsectionText(text)
	if !ok {
		return false
	}
	item := number + "."
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		rest, ok := strings.CutPrefix(trimIndent(line), item)
		if !ok {
			continue
		}
		// 項目番号の後には空白か改行が続く
		if rest == "" && i < len(lines)-1 {
			return true
		}
		if rest != "" && unicode.IsSpace(rune(rest[0])) {
			return true
		}
	}
	return false
}
