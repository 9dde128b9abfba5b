package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/steuer-rag/internal/core/resilience"
	"github.com/jinford/steuer-rag/internal/platform/diagnostics"
)

// Extractor は登録順に戦略を試し、最初に得られた引用を返す
// 抽出の失敗が回答全体の失敗になることはない
type Extractor struct {
	strategies []Strategy
	generic    string
	logger     *slog.Logger
	recorder   diagnostics.Recorder
}

// ExtractorOption は Extractor のオプション設定
type ExtractorOption func(*Extractor)

// WithExtractorLogger はロガーを設定する
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithExtractorRecorder は診断イベントの記録先を設定する
func WithExtractorRecorder(recorder diagnostics.Recorder) ExtractorOption {
	return func(e *Extractor) {
		e.recorder = recorder
	}
}

// NewExtractor は新しい Extractor を作成する
// generic は全ての戦略が失敗した場合の最終的な文言
func NewExtractor(generic string, strategies []Strategy, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		strategies: strategies,
		generic:    generic,
		logger:     slog.Default(),
		recorder:   diagnostics.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.recorder == nil {
		e.recorder = diagnostics.Nop{}
	}
	return e
}

// Extract は引用を返す。結果の Text は常に空でない
func (e *Extractor) Extract(ctx context.Context, req Request) Result {
	for _, s := range e.strategies {
		text, err := s.Extract(ctx, req)
		if err != nil {
			e.logger.Info("quote strategy failed", "tier", s.Tier(), "taskID", req.TaskID, "error", err)
			if s.Tier() == TierModel {
				e.recordModelFailure(ctx, req, err)
			}
			continue
		}

		e.recordTier(ctx, req, s.Tier())
		return Result{Text: text, Tier: s.Tier()}
	}

	e.recordTier(ctx, req, TierGeneric)
	return Result{Text: e.generic, Tier: TierGeneric}
}

func (e *Extractor) recordModelFailure(ctx context.Context, req Request, err error) {
	kind := "validation"
	if !errors.Is(err, ErrNoQuote) {
		kind = string(resilience.KindOf(err))
	}
	e.recorder.Record(ctx, diagnostics.Event{
		Type:   diagnostics.EventQuoteExtractionFailure,
		TaskID: req.TaskID,
		Kind:   kind,
		Detail: err.Error(),
	})
}

func (e *Extractor) recordTier(ctx context.Context, req Request, tier Tier) {
	var t diagnostics.EventType
	switch tier {
	case TierRegistered:
		t = diagnostics.EventQuoteFallbackHardcoded
	case TierGeneric:
		t = diagnostics.EventQuoteFallbackGeneric
	default:
		return
	}
	e.recorder.Record(ctx, diagnostics.Event{
		Type:   t,
		TaskID: req.TaskID,
		Detail: fmt.Sprintf("tier=%s", tier),
	})
}
