package indexing

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize はチャンクの最大文字数
	DefaultChunkSize = 800
	// DefaultChunkOverlap は隣接チャンク間で重複させる文字数
	DefaultChunkOverlap = 50
)

// DefaultSeparators は段落 > 行 > 文 > 単語 > 文字の順で試す区切り文字
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", " ", ""}

// ErrInvalidSplitter はチャンク設定が不正な場合に返される
var ErrInvalidSplitter = errors.New("invalid splitter configuration")

// Splitter は区切り文字を階層的に試しながらテキストを固定長のチャンクに分割する
// 長さは文字（rune）数で数える。区切り文字は後続の断片の先頭に残す
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter は新しい Splitter を作成する
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidSplitter, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidSplitter, overlap, size)
	}
	return &Splitter{
		size:       size,
		overlap:    overlap,
		separators: DefaultSeparators,
	}, nil
}

// Split はテキストをチャンクに分割する。空白のみのチャンクは返さない
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	// 最初にテキスト中に現れる区切り文字を使う
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var chunks []string
	var good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}
	return chunks
}

// merge は小さな断片をチャンクサイズ以内でまとめ、末尾 overlap 文字分を次のチャンクに持ち越す
func (s *Splitter) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0

	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.size && len(current) > 0 {
			if doc := joinTrimmed(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}

	if doc := joinTrimmed(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator は separator で分割し、区切り文字を後続の断片の先頭に付ける
// separator が空の場合は1文字ずつに分割する
func splitKeepingSeparator(text, separator string) []string {
	if separator == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, separator+p)
	}
	return out
}

func joinTrimmed(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
