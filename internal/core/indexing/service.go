package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jinford/steuer-rag/internal/core/statute"
)

const (
	// DefaultEmbeddingWorkerCount は同時に実行する Embedding バッチ数（I/O バウンド）
	DefaultEmbeddingWorkerCount = 4
	// MinBatchSize は Embedder.MaxBatchSize() が0以下を返した場合のフォールバック
	MinBatchSize = 1
)

// ErrEmbeddingMismatch は Embedder が返したベクトル数が入力件数と異なる場合に返される
var ErrEmbeddingMismatch = errors.New("embedding count mismatch")

// Result はインデックス作成の結果
type Result struct {
	Documents      int
	Chunks         int
	EmbeddingModel string
	Dimension      int
	Backend        string
	Duration       time.Duration
}

// Service はオフラインのインデックス作成を行う
// 実行のたびに既存インデックスを破棄して作り直す
type Service struct {
	loader   *Loader
	splitter *Splitter
	embedder Embedder
	writer   Writer
	workers  int
	logger   *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEmbeddingWorkers は同時実行する Embedding バッチ数を設定する
func WithEmbeddingWorkers(n int) ServiceOption {
	return func(s *Service) {
		s.workers = n
	}
}

// NewService は新しい Service を作成する
func NewService(loader *Loader, splitter *Splitter, embedder Embedder, writer Writer, opts ...ServiceOption) *Service {
	s := &Service{
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		writer:   writer,
		workers:  DefaultEmbeddingWorkerCount,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	return s
}

// Build は文書を読み込み、分割・Embedding して永続化インデックスを作り直す
func (s *Service) Build(ctx context.Context) (*Result, error) {
	start := time.Now()

	docs, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	chunks := s.ChunkDocuments(docs)
	s.logger.Info("documents split into chunks", "documents", len(docs), "chunks", len(chunks))

	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	dimension := len(vectors[0])
	records := make([]Record, len(chunks))
	for i := range chunks {
		if len(vectors[i]) != dimension {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, want %d", ErrEmbeddingMismatch, i, len(vectors[i]), dimension)
		}
		records[i] = Record{Chunk: chunks[i], Vector: vectors[i]}
	}

	if err := s.writer.Reset(ctx, dimension); err != nil {
		return nil, fmt.Errorf("failed to reset index: %w", err)
	}
	if err := s.writer.Write(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}

	result := &Result{
		Documents:      len(docs),
		Chunks:         len(records),
		EmbeddingModel: s.embedder.ModelName(),
		Dimension:      dimension,
		Backend:        s.writer.Backend(),
		Duration:       time.Since(start),
	}

	s.logger.Info("index build completed",
		"documents", result.Documents,
		"chunks", result.Chunks,
		"embeddingModel", result.EmbeddingModel,
		"dimension", result.Dimension,
		"backend", result.Backend,
		"duration", result.Duration,
	)

	return result, nil
}

// ChunkDocuments は文書をチャンクに分割し、メタデータを付与する
// Absatz の参照はチャンク自身の先頭テキストから判定する
func (s *Service) ChunkDocuments(docs []Document) []statute.Chunk {
	var chunks []statute.Chunk
	for _, doc := range docs {
		ref := doc.Reference.String()
		for _, text := range s.splitter.Split(doc.Text) {
			c := statute.Chunk{
				Text:           text,
				LegalReference: ref,
				SourceFile:     doc.SourceFile,
				SourceURL:      doc.SourceURL,
			}
			if sub, ok := statute.DetectSubsection(text); ok {
				c.LegalReferenceFull = doc.Reference.WithSubsection(sub)
			}
			chunks = append(chunks, c)
		}
	}
	return chunks
}

func (s *Service) embedAll(ctx context.Context, chunks []statute.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: documents produced no chunks", ErrNoDocuments)
	}

	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		s.logger.Warn("invalid embedder batch size, using fallback", "returned", batchSize, "fallback", MinBatchSize)
		batchSize = MinBatchSize
	}

	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))

		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}

			got, err := s.embedder.BatchEmbed(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(got) != len(texts) {
				return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingMismatch, len(got), len(texts))
			}

			// バッチごとに担当範囲が重ならないためロック不要
			copy(vectors[start:end], got)

			s.logger.Debug("embedding batch completed", "from", start, "to", end-1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
