package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/steuer-rag/internal/core/answer"
	"github.com/jinford/steuer-rag/internal/core/citation"
	"github.com/jinford/steuer-rag/internal/core/quote"
	"github.com/jinford/steuer-rag/internal/core/resilience"
	"github.com/jinford/steuer-rag/internal/core/retrieval"
	"github.com/jinford/steuer-rag/internal/core/statute"
	"github.com/jinford/steuer-rag/internal/platform/diagnostics"
	"github.com/jinford/steuer-rag/internal/platform/logger"
)

const (
	// DefaultSearchK は検索する候補数
	DefaultSearchK = 2
	// DefaultTimeout は検索と生成を合わせた処理の上限時間
	DefaultTimeout = 45 * time.Second

	queryLogRunes    = 100
	overloadLogRunes = 30
)

// Retriever は候補チャンクを検索する
type Retriever interface {
	Load(ctx context.Context) error
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.Candidate, error)
}

// Generator は回答を生成する
type Generator interface {
	Contextualize(query string, history []answer.Turn) (string, error)
	Generate(ctx context.Context, query string, candidates []retrieval.Candidate, history []answer.Turn) (string, error)
}

// QuoteExtractor は根拠条文から引用を抜き出す
type QuoteExtractor interface {
	Extract(ctx context.Context, req quote.Request) quote.Result
}

// Config は Service の設定
type Config struct {
	Messages Messages
	// RefusalPhrases はモデルが回答を拒否したとみなす定型文
	RefusalPhrases []string
	SearchK        int
	Timeout        time.Duration
}

// Service は1ターンの質問応答を組み立てる
// 状態は持たず、会話履歴などは全て引数で受け取る
type Service struct {
	retriever  Retriever
	generator  Generator
	reconciler *citation.Reconciler
	quotes     QuoteExtractor
	retrier    *resilience.Retrier
	config     Config
	logger     *slog.Logger
	recorder   diagnostics.Recorder
	newID      func() string
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithAskLogger は Service にロガーを設定する
func WithAskLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAskRecorder は診断イベントの記録先を設定する
func WithAskRecorder(recorder diagnostics.Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithRequestIDGenerator はリクエストIDの生成方法を差し替える
func WithRequestIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService は新しい Service を作成する
func NewService(
	retriever Retriever,
	generator Generator,
	reconciler *citation.Reconciler,
	quotes QuoteExtractor,
	retrier *resilience.Retrier,
	cfg Config,
	opts ...ServiceOption,
) *Service {
	if cfg.SearchK <= 0 {
		cfg.SearchK = DefaultSearchK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	svc := &Service{
		retriever:  retriever,
		generator:  generator,
		reconciler: reconciler,
		quotes:     quotes,
		retrier:    retrier,
		config:     cfg,
		logger:     slog.Default(),
		recorder:   diagnostics.Nop{},
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.recorder == nil {
		svc.recorder = diagnostics.Nop{}
	}
	return svc
}

// Init はインデックスを読み込む。失敗は致命的エラーとして返す
func (s *Service) Init(ctx context.Context) error {
	return s.retriever.Load(ctx)
}

type generated struct {
	candidates []retrieval.Candidate
	answer     string
}

// Ask は質問に対して根拠付きの回答を返す
// 外部呼び出しの失敗は劣化応答に変換し、error は入力不正・初期化失敗・呼び出し元のキャンセルに限る
func (s *Service) Ask(ctx context.Context, params Params) (*Response, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, ErrEmptyQuery
	}

	requestID := s.newID()
	ctx = diagnostics.WithScope(ctx, diagnostics.Scope{
		RequestID: requestID,
		TaskID:    params.TaskID,
		Query:     logger.Truncate(params.Query, queryLogRunes),
	})
	log := s.logger.With("requestID", requestID, "taskID", params.TaskID)

	query, err := s.generator.Contextualize(params.Query, params.History)
	if err != nil {
		return s.promptFailed(ctx, log, requestID, err), nil
	}

	log.Info("executing retrieval and generation",
		"query", logger.Truncate(params.Query, queryLogRunes),
		"contextualized", query != params.Query,
		"k", s.config.SearchK,
	)

	out, err := resilience.RunIsolated(ctx, s.config.Timeout, func(ctx context.Context) (generated, error) {
		candidates, err := resilience.Call(ctx, s.retrier, "retrieve", func(ctx context.Context) ([]retrieval.Candidate, error) {
			return s.retriever.Retrieve(ctx, query, s.config.SearchK)
		})
		if err != nil {
			return generated{}, err
		}
		if len(candidates) == 0 {
			return generated{candidates: candidates}, nil
		}

		text, err := s.generator.Generate(ctx, params.Query, candidates, params.History)
		if err != nil {
			return generated{}, err
		}
		return generated{candidates: candidates, answer: text}, nil
	})
	if err != nil {
		return s.failed(ctx, log, requestID, err)
	}

	if len(out.candidates) == 0 {
		log.Info("no candidates retrieved")
		return s.noAnswer(requestID), nil
	}
	if strings.TrimSpace(out.answer) == "" || answer.ContainsMarker(out.answer, s.config.RefusalPhrases) {
		log.Info("model declined to answer")
		return s.noAnswer(requestID), nil
	}

	selection, _ := s.reconciler.Select(ctx, out.answer, out.candidates)
	chunk := selection.Candidate.Chunk
	repair := s.reconciler.Repair(ctx, out.answer, chunk)

	fullRef := chunk.FullReference()
	if repair.Changed() {
		fullRef = statute.FullReference(chunk.LegalReference, repair.Subsection)
	}

	resp := &Response{
		RequestID:          requestID,
		Answer:             repair.Answer,
		SelectedChunk:      mo.Some(chunk),
		LegalReference:     mo.Some(chunk.LegalReference),
		LegalReferenceFull: mo.Some(fullRef),
		SourceURL:          optionalString(chunk.SourceURL),
	}

	if params.Condition == ConditionAugmented {
		q := s.quotes.Extract(ctx, quote.Request{
			Query:      params.Query,
			Answer:     repair.Answer,
			SourceText: chunk.Text,
			TaskID:     params.TaskID,
		})
		resp.Quote = mo.Some(q.Text)
		resp.QuoteTier = mo.Some(q.Tier)
	}

	log.Info("ask completed successfully",
		"reference", fullRef,
		"selection", selection.Reason,
		"repair", repair.Kind,
		"quoteTier", resp.QuoteTier.OrEmpty(),
		"answerLength", len(resp.Answer),
	)

	return resp, nil
}

// failed は検索・生成の失敗を劣化応答に変換する
func (s *Service) failed(ctx context.Context, log *slog.Logger, requestID string, err error) (*Response, error) {
	switch {
	case errors.Is(err, retrieval.ErrIndexUnavailable):
		log.Error("index unavailable", "error", err)
		return nil, err

	case errors.Is(err, resilience.ErrHardTimeout):
		log.Warn("retrieval and generation timed out", "timeout", s.config.Timeout)
		s.recorder.Record(ctx, diagnostics.Event{
			Type:   diagnostics.EventRAGTimeout,
			Kind:   string(resilience.KindTimeout),
			Detail: fmt.Sprintf("%s timeout exceeded", s.config.Timeout),
		})
		return s.degraded(requestID, s.config.Messages.Timeout, true), nil

	case ctx.Err() != nil:
		return nil, fmt.Errorf("ask cancelled: %w", ctx.Err())
	}

	var pe *answer.PromptError
	if errors.As(err, &pe) {
		return s.promptFailed(ctx, log, requestID, err), nil
	}

	kind := resilience.KindOf(err)
	log.Error("retrieval or generation failed", "kind", kind, "error", err)
	s.recorder.Record(ctx, diagnostics.Event{
		Type:   diagnostics.EventRAGInvocationFailed,
		Kind:   string(kind),
		Detail: err.Error(),
	})

	if kind.Recoverable() {
		event := diagnostics.Event{
			Type: diagnostics.EventAPIOverload,
			Kind: string(kind),
		}
		if scope, ok := diagnostics.ScopeFrom(ctx); ok {
			event.Query = logger.Truncate(scope.Query, overloadLogRunes)
		}
		s.recorder.Record(ctx, event)
		return s.degraded(requestID, s.config.Messages.Busy, true), nil
	}
	return s.degraded(requestID, s.config.Messages.Rephrase, false), nil
}

func (s *Service) promptFailed(ctx context.Context, log *slog.Logger, requestID string, err error) *Response {
	log.Error("prompt construction failed", "error", err)
	s.recorder.Record(ctx, diagnostics.Event{
		Type:   diagnostics.EventRAGPromptFailed,
		Detail: err.Error(),
	})
	return s.degraded(requestID, s.config.Messages.Retry, true)
}

func (s *Service) noAnswer(requestID string) *Response {
	return &Response{
		RequestID: requestID,
		Answer:    s.config.Messages.NoAnswer,
		NoAnswer:  true,
	}
}

func (s *Service) degraded(requestID, message string, recoverable bool) *Response {
	return &Response{
		RequestID:   requestID,
		Answer:      message,
		Error:       true,
		Recoverable: recoverable,
	}
}

func optionalString(s string) mo.Option[string] {
	if s == "" {
		return mo.None[string]()
	}
	return mo.Some(s)
}
