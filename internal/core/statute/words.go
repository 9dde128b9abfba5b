package statute

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinContentWordLength は内容語とみなす最小文字数
const MinContentWordLength = 5

// ContentWords は小文字化したテキストから5文字以上の語の集合を返す
func ContentWords(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	words := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= MinContentWordLength {
			words[f] = struct{}{}
		}
	}
	return words
}

// Overlap は a の内容語のうち b にも含まれる語数と、その a に対する割合を返す
func Overlap(a, b map[string]struct{}) (int, float64) {
	if len(a) == 0 {
		return 0, 0
	}

	count := 0
	for w := range a {
		if _, ok := b[w]; ok {
			count++
		}
	}
	return count, float64(count) / float64(len(a))
}
