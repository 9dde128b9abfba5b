package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jinford/steuer-rag/internal/core/statute"
)

// ErrNoDocuments は読み込み対象の文書が1件もない場合に返される
var ErrNoDocuments = errors.New("no documents to index")

// Document は1ファイル分の法令テキストとメタデータ
type Document struct {
	Text       string
	Reference  statute.Reference
	SourceFile string
	SourceURL  string
}

// Loader はデータディレクトリから法令テキストを読み込む
// 公式URLが登録されていないファイルは読み飛ばす
type Loader struct {
	dataDir string
	sources map[string]string
	laws    map[string]string
	logger  *slog.Logger
}

// NewLoader は新しい Loader を作成する
func NewLoader(dataDir string, sources, laws map[string]string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if laws == nil {
		laws = statute.DefaultLaws
	}
	return &Loader{
		dataDir: dataDir,
		sources: sources,
		laws:    laws,
		logger:  logger,
	}
}

// Load はファイル名順に文書を読み込む
func (l *Loader) Load(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(l.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory %s: %w", l.dataDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !strings.HasSuffix(name, ".txt") {
			continue
		}

		url, ok := l.sources[name]
		if !ok {
			l.logger.Warn("no source URL registered, skipping", "file", name)
			continue
		}

		ref, err := statute.ParseLegalReference(name, l.laws)
		if err != nil {
			l.logger.Warn("unsupported file name, skipping", "file", name, "error", err)
			continue
		}

		content, err := os.ReadFile(filepath.Join(l.dataDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		docs = append(docs, Document{
			Text:       string(content),
			Reference:  ref,
			SourceFile: name,
			SourceURL:  url,
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, l.dataDir)
	}

	l.logger.Info("documents loaded", "count", len(docs), "dir", l.dataDir)
	return docs, nil
}
