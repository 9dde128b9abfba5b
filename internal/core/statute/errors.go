package statute

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFileName はファイル名が <law>_<section>.txt 形式でない場合に返される
	ErrUnsupportedFileName = errors.New("unsupported statute file name")

	// ErrUnknownLaw は登録されていない法令略称の場合に返される
	ErrUnknownLaw = errors.New("unknown law abbreviation")

	// ErrEmptyText はチャンク本文が空の場合に返される
	ErrEmptyText = errors.New("empty chunk text")

	// ErrMissingReference は法令参照が導出できない場合に返される
	ErrMissingReference = errors.New("missing legal reference")
)

// ChunkError はチャンクのメタデータ不備を表す
type ChunkError struct {
	Op         string
	SourceFile string
	Err        error
}

func (e *ChunkError) Error() string {
	if e.SourceFile != "" {
		return fmt.Sprintf("statute: %s: %s (file=%s)", e.Op, e.Err, e.SourceFile)
	}
	return fmt.Sprintf("statute: %s: %s", e.Op, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}
