package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/steuer-rag/internal/core/indexing"
	"github.com/jinford/steuer-rag/internal/core/retrieval"
	"github.com/jinford/steuer-rag/internal/core/statute"
	"github.com/jinford/steuer-rag/internal/platform/database"
)

// Backend はこのストアの識別名
const Backend = "pgvector"

// undefinedTable は PostgreSQL の "relation does not exist" エラーコード
const undefinedTable = "42P01"

// Store は pgvector 拡張を使って PostgreSQL にインデックスを保存する
// 近傍探索はデータベース側で行う
type Store struct {
	db        *database.Database
	logger    *slog.Logger
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

// NewStore は新しい Store を作成する
func NewStore(db *database.Database, opts ...StoreOption) *Store {
	s := &Store{
		db:     db,
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

// Reset はチャンクテーブルを指定次元で作り直す
func (s *Store) Reset(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}

	err := s.db.Transact(ctx, func(tx pgx.Tx) error {
		stmts := []string{
			`CREATE EXTENSION IF NOT EXISTS vector`,
			`DROP TABLE IF EXISTS statute_chunks`,
			fmt.Sprintf(`CREATE TABLE statute_chunks (
				id                   BIGSERIAL PRIMARY KEY,
				text                 TEXT NOT NULL,
				legal_reference      TEXT NOT NULL,
				legal_reference_full TEXT NOT NULL DEFAULT '',
				source_file          TEXT NOT NULL,
				source_url           TEXT NOT NULL DEFAULT '',
				embedding            vector(%d) NOT NULL
			)`, dimension),
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to reset schema: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.dimension = dimension
	s.logger.Debug("pgvector index reset", "dimension", dimension)
	return nil
}

// Write はレコードを1トランザクションで追加する
func (s *Store) Write(ctx context.Context, records []indexing.Record) error {
	for i, r := range records {
		if s.dimension > 0 && len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: record %d has %d, want %d", retrieval.ErrDimensionMismatch, i, len(r.Vector), s.dimension)
		}
	}

	return s.db.Transact(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			c := r.Chunk
			batch.Queue(`
				INSERT INTO statute_chunks (text, legal_reference, legal_reference_full, source_file, source_url, embedding)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				c.Text, c.LegalReference, c.LegalReferenceFull, c.SourceFile, c.SourceURL, pgvector.NewVector(r.Vector))
		}

		results := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		return results.Close()
	})
}

// Open はテーブルにチャンクが存在することを確認し、自身を Index として返す
func (s *Store) Open(ctx context.Context) (retrieval.Index, error) {
	var count int64
	err := s.db.Pool.QueryRow(ctx, `SELECT count(*) FROM statute_chunks`).Scan(&count)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			return nil, fmt.Errorf("%w: statute_chunks does not exist", retrieval.ErrIndexNotFound)
		}
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: statute_chunks is empty", retrieval.ErrIndexNotFound)
	}

	s.logger.Info("pgvector index opened", "chunks", count)
	return s, nil
}

// Search は L2 距離の昇順で最大 k 件を返す
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]retrieval.Hit, error) {
	if k <= 0 {
		return []retrieval.Hit{}, nil
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT text, legal_reference, legal_reference_full, source_file, source_url, embedding <-> $1 AS distance
		FROM statute_chunks
		ORDER BY distance, id
		LIMIT $2`,
		pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]retrieval.Hit, 0, k)
	for rows.Next() {
		var (
			c        statute.Chunk
			distance float64
		)
		if err := rows.Scan(&c.Text, &c.LegalReference, &c.LegalReferenceFull, &c.SourceFile, &c.SourceURL, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		hits = append(hits, retrieval.Hit{Chunk: c, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	return hits, nil
}

var (
	_ indexing.Writer  = (*Store)(nil)
	_ retrieval.Opener = (*Store)(nil)
	_ retrieval.Index  = (*Store)(nil)
)
