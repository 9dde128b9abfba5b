package container

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/steuer-rag/internal/core/ask"
	"github.com/jinford/steuer-rag/internal/core/llm"
	"github.com/jinford/steuer-rag/internal/core/quote"
	"github.com/jinford/steuer-rag/internal/core/resilience"
	"github.com/jinford/steuer-rag/internal/infra/tokenizer"
	"github.com/jinford/steuer-rag/internal/platform/config"
	"github.com/jinford/steuer-rag/internal/platform/diagnostics"
)

const quoteText = "Für die Inanspruchnahme von haushaltsnahen Dienstleistungen ermäßigt sich die tarifliche Einkommensteuer."

// keywordEmbedder はキーワードの有無をベクトルにする
type keywordEmbedder struct{}

func (keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := []float32{0, 0, 1}
	if strings.Contains(lower, "dienstleistung") {
		v[0] = 1
	}
	if strings.Contains(lower, "kapital") {
		v[1] = 1
	}
	return v
}

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e keywordEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (keywordEmbedder) MaxBatchSize() int { return 10 }
func (keywordEmbedder) ModelName() string { return "keyword" }

type fixedCompleter struct{}

func (fixedCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	if req.System == "" {
		return quoteText, nil
	}
	return "Nach §35a Abs. 2 EStG ermäßigt sich die Einkommensteuer für haushaltsnahe Dienstleistungen.", nil
}

func (fixedCompleter) ModelName() string { return "fixed" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	pb, err := config.DefaultPhraseBook()
	require.NoError(t, err)

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "estg_35a.txt"),
		[]byte("(1) Für haushaltsnahe Beschäftigungsverhältnisse ermäßigt sich die Steuer.\n\n(2) "+quoteText), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "estg_20.txt"),
		[]byte("(1) Zu den Einkünften aus Kapitalvermögen gehören Gewinnanteile."), 0o644))

	return &config.Config{
		Index: config.IndexConfig{
			Backend:      "sqlite",
			Path:         filepath.Join(dir, "vectorstore", "index.db"),
			DataDir:      dataDir,
			ChunkSize:    800,
			ChunkOverlap: 50,
			SearchK:      2,
			LoadAttempts: 1,
			LoadBackoff:  time.Millisecond,
		},
		Answer: config.AnswerConfig{
			ReferenceDate: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
			HistoryTurns:  4,
		},
		Citation: config.CitationConfig{
			MinOverlapWords:       3,
			MinOverlapRatio:       0.2,
			MinListItemSubsection: 5,
		},
		Quote: config.QuoteConfig{MinLength: 50},
		Resilience: config.ResilienceConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			Timeout:     5 * time.Second,
		},
		PhraseBook: pb,
	}
}

func newTestContainer(t *testing.T, cfg *config.Config, rec diagnostics.Recorder) *ServiceContainer {
	t.Helper()

	c, err := NewContainer(context.Background(), cfg,
		WithContainerLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		WithContainerCompleter(fixedCompleter{}),
		WithContainerEmbedder(keywordEmbedder{}),
		WithContainerTokenCounter(tokenizer.Approximate{}),
		WithContainerRecorder(rec),
		WithContainerRetrierOptions(resilience.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })),
		WithContainerRequestIDFunc(func() string { return "req-1" }),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestContainer_IndexThenAsk(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	c := newTestContainer(t, cfg, &diagnostics.Memory{})

	result, err := c.IndexService.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Documents)
	assert.Equal(t, "sqlite", result.Backend)

	require.NoError(t, c.AskService.Init(ctx))

	resp, err := c.AskService.Ask(ctx, ask.Params{
		Query:     "Wie werden haushaltsnahe Dienstleistungen gefördert?",
		Condition: ask.ConditionAugmented,
	})
	require.NoError(t, err)

	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.NoAnswer)
	assert.Equal(t, "EStG §35a", resp.LegalReference.OrEmpty())
	assert.Equal(t, "https://www.gesetze-im-internet.de/estg/__35a.html", resp.SourceURL.OrEmpty())
	assert.Equal(t, quoteText, resp.Quote.OrEmpty())
	assert.Equal(t, quote.TierModel, resp.QuoteTier.OrEmpty())
}

func TestContainer_InitWithoutIndexFails(t *testing.T) {
	cfg := testConfig(t)
	rec := &diagnostics.Memory{}
	c := newTestContainer(t, cfg, rec)

	err := c.AskService.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, rec.Types(), diagnostics.EventIndexLoadFailed)
}

func TestNewContainer_RejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Backend = "faiss"

	_, err := NewContainer(context.Background(), cfg,
		WithContainerCompleter(fixedCompleter{}),
		WithContainerEmbedder(keywordEmbedder{}),
		WithContainerTokenCounter(tokenizer.Approximate{}),
		WithContainerRecorder(diagnostics.Nop{}),
	)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
