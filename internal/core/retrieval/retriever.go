package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jinford/steuer-rag/internal/platform/diagnostics"
)

const (
	// DefaultLoadAttempts はインデックス読み込みの最大試行回数
	DefaultLoadAttempts = 3
	// DefaultLoadBackoff は読み込み再試行の初回待機時間（以後 2 倍）
	DefaultLoadBackoff = time.Second
)

// Retriever はクエリに近いチャンクを返す
// インデックスはプロセス内で一度だけ読み込み、以後は読み取り専用で共有する
type Retriever struct {
	opener   Opener
	embedder Embedder
	logger   *slog.Logger
	recorder diagnostics.Recorder

	loadAttempts int
	loadBackoff  time.Duration
	loadTimer    backoff.Timer // nil なら実時間で待機する

	mu    sync.Mutex
	index Index
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*Retriever)

// WithRetrieverLogger はロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// WithRetrieverRecorder は診断イベントの記録先を設定する
func WithRetrieverRecorder(recorder diagnostics.Recorder) RetrieverOption {
	return func(r *Retriever) {
		r.recorder = recorder
	}
}

// WithLoadRetry は読み込みの試行回数と初回待機時間を設定する
func WithLoadRetry(attempts int, initial time.Duration) RetrieverOption {
	return func(r *Retriever) {
		r.loadAttempts = attempts
		r.loadBackoff = initial
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(opener Opener, embedder Embedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		opener:       opener,
		embedder:     embedder,
		logger:       slog.Default(),
		recorder:     diagnostics.Nop{},
		loadAttempts: DefaultLoadAttempts,
		loadBackoff:  DefaultLoadBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.recorder == nil {
		r.recorder = diagnostics.Nop{}
	}
	if r.loadAttempts < 1 {
		r.loadAttempts = 1
	}
	return r
}

// Load はインデックスを読み込む。読み込み済みなら何もしない
// 失敗時は 1s, 2s, 4s... と待機して再試行し、最終的に失敗すれば ErrIndexUnavailable を返す
func (r *Retriever) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index != nil {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.loadBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = r.loadBackoff << uint(r.loadAttempts)
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	var idx Index
	op := func() error {
		attempt++
		opened, err := r.opener.Open(ctx)
		if err != nil {
			return err
		}
		idx = opened
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("index load failed, retrying",
			"attempt", attempt,
			"maxAttempts", r.loadAttempts,
			"wait", wait,
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.loadAttempts-1)), ctx)
	if err := backoff.RetryNotifyWithTimer(op, policy, notify, r.loadTimer); err != nil {
		r.logger.Error("index load failed", "attempts", attempt, "error", err)
		r.recorder.Record(ctx, diagnostics.Event{
			Type:   diagnostics.EventIndexLoadFailed,
			Kind:   errorLabel(err),
			Detail: fmt.Sprintf("attempts=%d: %v", attempt, err),
		})
		return fmt.Errorf("%w: after %d attempts: %w", ErrIndexUnavailable, attempt, err)
	}

	r.logger.Info("index loaded", "attempt", attempt)
	r.index = idx
	return nil
}

// Loaded はインデックスが読み込み済みかを返す
func (r *Retriever) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index != nil
}

// Retrieve はクエリに近い順に最大 k 件の候補を返す
// 該当がない場合もエラーにせず空のスライスを返す
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return []Candidate{}, nil
	}

	if err := r.Load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	idx := r.index
	r.mu.Unlock()

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := idx.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	candidates := make([]Candidate, 0, len(hits))
	for i, h := range hits {
		candidates = append(candidates, Candidate{
			Chunk:    h.Chunk,
			Rank:     i,
			Distance: h.Distance,
		})
	}

	r.logger.Debug("retrieval completed", "candidates", len(candidates), "k", k)
	return candidates, nil
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrIndexNotFound):
		return "index_missing"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "load_failed"
	}
}
