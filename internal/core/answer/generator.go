package answer

import (
	"context"
	"log/slog"

	"github.com/jinford/steuer-rag/internal/core/llm"
	"github.com/jinford/steuer-rag/internal/core/resilience"
	"github.com/jinford/steuer-rag/internal/core/retrieval"
	"github.com/jinford/steuer-rag/internal/platform/logger"
)

// Generator は検索結果に基づいて回答を生成する
type Generator struct {
	prompts     *PromptBuilder
	completer   llm.Completer
	retrier     *resilience.Retrier
	temperature float64
	logger      *slog.Logger
}

// GeneratorOption は Generator のオプション設定
type GeneratorOption func(*Generator)

// WithGeneratorLogger はロガーを設定する
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithTemperature は生成時の temperature を設定する
func WithTemperature(t float64) GeneratorOption {
	return func(g *Generator) {
		g.temperature = t
	}
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(prompts *PromptBuilder, completer llm.Completer, retrier *resilience.Retrier, opts ...GeneratorOption) *Generator {
	g := &Generator{
		prompts:   prompts,
		completer: completer,
		retrier:   retrier,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Contextualize は検索にも使う履歴付きクエリを返す
func (g *Generator) Contextualize(query string, history []Turn) (string, error) {
	return g.prompts.Contextualize(query, history)
}

// Generate はプロンプトを組み立ててモデルを呼び出す
// プロンプト組み立ての失敗は *PromptError を返し、リトライしない
func (g *Generator) Generate(ctx context.Context, query string, candidates []retrieval.Candidate, history []Turn) (string, error) {
	prompt, err := g.prompts.Build(query, candidates, history)
	if err != nil {
		return "", err
	}

	g.logger.Debug("generating answer",
		"model", g.completer.ModelName(),
		"query", logger.Truncate(query, 30),
		"candidates", len(candidates),
		"historyTurns", prompt.HistoryTurns,
		"tokens", prompt.Tokens,
	)

	req := llm.CompletionRequest{
		System:      prompt.System,
		User:        prompt.User,
		Temperature: g.temperature,
	}
	return resilience.Call(ctx, g.retrier, "generate", func(ctx context.Context) (string, error) {
		return g.completer.Complete(ctx, req)
	})
}
