package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jinford/steuer-rag/internal/core/indexing"
	"github.com/jinford/steuer-rag/internal/core/retrieval"
	"github.com/jinford/steuer-rag/internal/core/statute"
	_ "modernc.org/sqlite"
)

// Backend はこのストアの識別名
const Backend = "sqlite"

const schema = `
CREATE TABLE index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE chunks (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	text                 TEXT NOT NULL,
	legal_reference      TEXT NOT NULL,
	legal_reference_full TEXT NOT NULL DEFAULT '',
	source_file          TEXT NOT NULL,
	source_url           TEXT NOT NULL DEFAULT '',
	embedding            BLOB NOT NULL
);`

// Store は単一ファイルの SQLite にインデックスを保存する
// 書き込みは indexing.Writer、読み込みは retrieval.Opener として使う
type Store struct {
	path      string
	laws      map[string]string
	logger    *slog.Logger
	db        *sql.DB
	dimension int
}

// StoreOption は Store のオプション設定
type StoreOption func(*Store)

// WithStoreLogger はロガーを設定する
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore は path を保存先とする Store を作成する。ファイルは Reset まで作られない
// laws は読み込み時の参照補完に使う
func NewStore(path string, laws map[string]string, opts ...StoreOption) *Store {
	s := &Store{
		path:   path,
		laws:   laws,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend は書き込み先の名前を返す
func (s *Store) Backend() string {
	return Backend
}

// Reset は既存のインデックスを破棄し、空のテーブルを作り直す
func (s *Store) Reset(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}
	if err := s.Close(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old index: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO index_meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(dimension)); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to write index metadata: %w", err)
	}

	s.db = db
	s.dimension = dimension
	s.logger.Debug("sqlite index reset", "path", s.path, "dimension", dimension)
	return nil
}

// Write はレコードを1トランザクションで追加する
func (s *Store) Write(ctx context.Context, records []indexing.Record) (err error) {
	if s.db == nil {
		return errors.New("sqlite store is not reset")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (text, legal_reference, legal_reference_full, source_file, source_url, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: record %d has %d, want %d", retrieval.ErrDimensionMismatch, i, len(r.Vector), s.dimension)
		}
		c := r.Chunk
		if _, err := stmt.ExecContext(ctx,
			c.Text, c.LegalReference, c.LegalReferenceFull, c.SourceFile, c.SourceURL, encodeVector(r.Vector)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.LegalReference, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close は書き込み用の接続を閉じる
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Open は保存済みインデックスを全件読み込み、メモリ上の FlatIndex を返す
// ファイルが存在しない場合や空の場合は retrieval.ErrIndexNotFound を返す
func (s *Store) Open(ctx context.Context) (retrieval.Index, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", retrieval.ErrIndexNotFound, s.path)
		}
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT text, legal_reference, legal_reference_full, source_file, source_url, embedding
		FROM chunks ORDER BY id`)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, fmt.Errorf("%w: %s has no chunks table", retrieval.ErrIndexNotFound, s.path)
		}
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var entries []retrieval.Entry
	for rows.Next() {
		var (
			c    statute.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.Text, &c.LegalReference, &c.LegalReferenceFull, &c.SourceFile, &c.SourceURL, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := c.Normalize(s.laws); err != nil {
			return nil, err
		}
		vector, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.LegalReference, err)
		}
		entries = append(entries, retrieval.Entry{Chunk: c, Vector: vector})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", retrieval.ErrIndexNotFound, s.path)
	}

	idx, err := retrieval.NewFlatIndex(entries)
	if err != nil {
		return nil, err
	}
	s.logger.Info("sqlite index loaded", "path", s.path, "chunks", idx.Len())
	return idx, nil
}

var (
	_ indexing.Writer  = (*Store)(nil)
	_ retrieval.Opener = (*Store)(nil)
)
