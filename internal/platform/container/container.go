package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jinford/steuer-rag/internal/core/answer"
	"github.com/jinford/steuer-rag/internal/core/ask"
	"github.com/jinford/steuer-rag/internal/core/citation"
	"github.com/jinford/steuer-rag/internal/core/indexing"
	"github.com/jinford/steuer-rag/internal/core/llm"
	"github.com/jinford/steuer-rag/internal/core/quote"
	"github.com/jinford/steuer-rag/internal/core/resilience"
	"github.com/jinford/steuer-rag/internal/core/retrieval"
	"github.com/jinford/steuer-rag/internal/infra/gemini"
	"github.com/jinford/steuer-rag/internal/infra/openai"
	"github.com/jinford/steuer-rag/internal/infra/postgres"
	"github.com/jinford/steuer-rag/internal/infra/sqlite"
	"github.com/jinford/steuer-rag/internal/infra/tokenizer"
	"github.com/jinford/steuer-rag/internal/platform/config"
	"github.com/jinford/steuer-rag/internal/platform/database"
	"github.com/jinford/steuer-rag/internal/platform/diagnostics"
)

// IndexStore はインデックスの書き込み先と読み込み元を兼ねる
type IndexStore interface {
	indexing.Writer
	retrieval.Opener
}

// ServiceContainer は設定から組み立てたサービス群を保持する
type ServiceContainer struct {
	AskService   *ask.Service
	IndexService *indexing.Service
	Retriever    *retrieval.Retriever

	logger   *slog.Logger
	database *database.Database
	closers  []io.Closer
}

type containerOptions struct {
	logger        *slog.Logger
	completer     llm.Completer
	embedder      llm.Embedder
	store         IndexStore
	tokenCounter  answer.TokenCounter
	recorder      diagnostics.Recorder
	retrierOpts   []resilience.RetrierOption
	requestIDFunc func() string
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerCompleter は生成モデルを差し替える
func WithContainerCompleter(completer llm.Completer) ContainerOption {
	return func(opts *containerOptions) {
		opts.completer = completer
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder llm.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerStore はインデックスの保存先を差し替える
func WithContainerStore(store IndexStore) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter answer.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// WithContainerRecorder は診断イベントの記録先を差し替える
func WithContainerRecorder(recorder diagnostics.Recorder) ContainerOption {
	return func(opts *containerOptions) {
		opts.recorder = recorder
	}
}

// WithContainerRetrierOptions は Retrier のオプションを追加する
func WithContainerRetrierOptions(retrierOpts ...resilience.RetrierOption) ContainerOption {
	return func(opts *containerOptions) {
		opts.retrierOpts = append(opts.retrierOpts, retrierOpts...)
	}
}

// WithContainerRequestIDFunc はリクエストIDの生成を差し替える
func WithContainerRequestIDFunc(newID func() string) ContainerOption {
	return func(opts *containerOptions) {
		opts.requestIDFunc = newID
	}
}

// NewContainer は設定からコンテナを生成する
// 外部 API やデータベースへの接続はここで確立するが、インデックスの読み込みは行わない
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (_ *ServiceContainer, err error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	c := &ServiceContainer{logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	pb := cfg.PhraseBook
	if pb == nil {
		return nil, fmt.Errorf("%w: phrase book not loaded", config.ErrInvalidConfig)
	}

	// 診断イベント
	recorder := options.recorder
	if recorder == nil {
		recorder, err = diagnostics.New(cfg.DiagnosticsDir, diagnostics.WithRecorderLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("診断レコーダーの初期化に失敗しました: %w", err)
		}
		if closer, ok := recorder.(io.Closer); ok {
			c.closers = append(c.closers, closer)
		}
	}

	retrier := resilience.NewRetrier(resilience.Policy{
		MaxAttempts: cfg.Resilience.MaxAttempts,
		BaseDelay:   cfg.Resilience.BaseDelay,
		MaxDelay:    cfg.Resilience.MaxDelay,
		Jitter:      cfg.Resilience.Jitter,
	}, append([]resilience.RetrierOption{resilience.WithRetrierLogger(logger)}, options.retrierOpts...)...)

	completer := options.completer
	if completer == nil {
		completer, err = newCompleter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("LLMクライアント初期化に失敗しました: %w", err)
		}
	}
	if cfg.LLM.RequestsPerMinute > 0 {
		completer = llm.NewThrottledCompleter(completer, cfg.LLM.RequestsPerMinute)
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = newEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
		}
	}

	store := options.store
	if store == nil {
		store, err = c.newStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("インデックスストア初期化に失敗しました: %w", err)
		}
	}

	counter := options.tokenCounter
	if counter == nil {
		tc, tcErr := tokenizer.New(tokenizer.DefaultEncoding)
		if tcErr != nil {
			logger.Warn("tiktoken を読み込めないため概算でトークン数を数えます", "error", tcErr)
			counter = tokenizer.Approximate{}
		} else {
			counter = tc
		}
	}

	// 回答生成
	prompts, err := answer.NewPromptBuilder(answer.PromptConfig{
		SystemTemplate:       pb.Prompts.System,
		HistoryTemplate:      pb.Prompts.History,
		Refusal:              pb.Refusal,
		HistoryFilterMarkers: pb.HistoryFilterMarkers,
		ReferenceDate:        cfg.Answer.ReferenceDate,
		HistoryTurns:         cfg.Answer.HistoryTurns,
		MaxPromptTokens:      cfg.Answer.MaxPromptTokens,
	}, counter)
	if err != nil {
		return nil, fmt.Errorf("プロンプトテンプレートの解析に失敗しました: %w", err)
	}
	generator := answer.NewGenerator(prompts, completer, retrier,
		answer.WithGeneratorLogger(logger),
		answer.WithTemperature(cfg.LLM.Temperature),
	)

	// 検索
	c.Retriever = retrieval.NewRetriever(store, embedder,
		retrieval.WithRetrieverLogger(logger),
		retrieval.WithRetrieverRecorder(recorder),
		retrieval.WithLoadRetry(cfg.Index.LoadAttempts, cfg.Index.LoadBackoff),
	)

	// 引用照合
	reconciler := citation.NewReconciler(citation.Thresholds{
		MinOverlapWords:       cfg.Citation.MinOverlapWords,
		MinOverlapRatio:       cfg.Citation.MinOverlapRatio,
		MinListItemSubsection: cfg.Citation.MinListItemSubsection,
	},
		citation.WithReconcilerLogger(logger),
		citation.WithReconcilerRecorder(recorder),
	)

	// 引用抽出
	modelStrategy, err := quote.NewModelStrategy(completer, retrier,
		pb.Prompts.Quote, pb.QuoteFailureMarkers, cfg.Quote.MinLength)
	if err != nil {
		return nil, fmt.Errorf("引用抽出プロンプトの解析に失敗しました: %w", err)
	}
	extractor := quote.NewExtractor(pb.GenericQuote,
		[]quote.Strategy{modelStrategy, quote.NewRegisteredStrategy(pb.FallbackQuotes)},
		quote.WithExtractorLogger(logger),
		quote.WithExtractorRecorder(recorder),
	)

	askOpts := []ask.ServiceOption{ask.WithAskLogger(logger), ask.WithAskRecorder(recorder)}
	if options.requestIDFunc != nil {
		askOpts = append(askOpts, ask.WithRequestIDGenerator(options.requestIDFunc))
	}
	c.AskService = ask.NewService(c.Retriever, generator, reconciler, extractor, retrier, ask.Config{
		Messages:       ask.Messages(pb.Messages),
		RefusalPhrases: pb.RefusalPhrases(),
		SearchK:        cfg.Index.SearchK,
		Timeout:        cfg.Resilience.Timeout,
	}, askOpts...)

	// インデックス作成
	splitter, err := indexing.NewSplitter(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	c.IndexService = indexing.NewService(
		indexing.NewLoader(cfg.Index.DataDir, pb.Sources, pb.Laws, logger),
		splitter,
		llm.NewRetryingEmbedder(embedder, retrier),
		store,
		indexing.WithServiceLogger(logger),
	)

	return c, nil
}

func newCompleter(ctx context.Context, cfg *config.Config) (llm.Completer, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.LLM.GenerationModel)
	case "openai":
		return openai.NewClient(cfg.OpenAI.APIKey, openai.WithModel(cfg.LLM.GenerationModel))
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalidConfig, cfg.LLM.Provider)
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config) (llm.Embedder, error) {
	switch cfg.LLM.EmbeddingProvider {
	case "gemini":
		return gemini.NewEmbedder(ctx, cfg.Gemini.APIKey, cfg.LLM.EmbeddingModel, cfg.Index.EmbeddingDimension)
	case "openai":
		return openai.NewEmbedder(cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.LLM.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.Index.EmbeddingDimension),
		)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, cfg.LLM.EmbeddingProvider)
	}
}

func (c *ServiceContainer) newStore(ctx context.Context, cfg *config.Config) (IndexStore, error) {
	switch cfg.Index.Backend {
	case sqlite.Backend:
		store := sqlite.NewStore(cfg.Index.Path, cfg.PhraseBook.Laws, sqlite.WithStoreLogger(c.logger))
		c.closers = append(c.closers, store)
		return store, nil
	case "postgres", postgres.Backend:
		db, err := database.New(ctx, database.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		c.database = db
		return postgres.NewStore(db, postgres.WithStoreLogger(c.logger)), nil
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", config.ErrInvalidConfig, cfg.Index.Backend)
	}
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.Logger().Warn("リソースの解放に失敗しました", "error", err)
		}
	}
	c.closers = nil
	if c.database != nil {
		c.database.Close()
		c.database = nil
	}
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
