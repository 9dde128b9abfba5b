package statute

import (
	"fmt"
	"strings"
)

// Chunk は法令テキストの連続した断片と引用メタデータを表す
// インデックス作成時に一度だけ生成され、以後は読み取り専用
type Chunk struct {
	Text               string `json:"text"`
	LegalReference     string `json:"legalReference"`               // 例: "EStG §35a"
	LegalReferenceFull string `json:"legalReferenceFull,omitempty"` // 例: "EStG §35a Abs. 2"（先頭に Absatz がある場合のみ）
	SourceFile         string `json:"sourceFile"`
	SourceURL          string `json:"sourceUrl"`
}

// FullReference は Absatz 付きの参照があればそれを、なければ短い参照を返す
func (c Chunk) FullReference() string {
	if c.LegalReferenceFull != "" {
		return c.LegalReferenceFull
	}
	return c.LegalReference
}

// Section はチャンクの Paragraph 番号を返す（例: "35a"）
func (c Chunk) Section() (string, bool) {
	return SectionOf(c.LegalReference)
}

// Validate は本文と法令参照が揃っているかを検証する
func (c Chunk) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return &ChunkError{Op: "validate", SourceFile: c.SourceFile, Err: ErrEmptyText}
	}
	if _, ok := SectionOf(c.LegalReference); !ok {
		return &ChunkError{
			Op:         "validate",
			SourceFile: c.SourceFile,
			Err:        fmt.Errorf("%w: %q", ErrMissingReference, c.LegalReference),
		}
	}
	return nil
}

// Normalize はロード時に欠けている参照を補完してから検証する
// LegalReference が空の場合は SourceFile から導出する
func (c *Chunk) Normalize(laws map[string]string) error {
	if c.LegalReference == "" && c.SourceFile != "" && strings.TrimSpace(c.Text) != "" {
		ref, err := ParseLegalReference(c.SourceFile, laws)
		if err != nil {
			return &ChunkError{Op: "normalize", SourceFile: c.SourceFile, Err: err}
		}
		c.LegalReference = ref.String()
	}
	return c.Validate()
}
