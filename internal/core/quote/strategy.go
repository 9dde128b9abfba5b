package quote

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/jinford/steuer-rag/internal/core/answer"
	"github.com/jinford/steuer-rag/internal/core/llm"
	"github.com/jinford/steuer-rag/internal/core/resilience"
)

// ModelStrategy はモデルに根拠条文からの逐語抜粋を依頼する
type ModelStrategy struct {
	completer      llm.Completer
	retrier        *resilience.Retrier
	prompt         *template.Template
	minLength      int
	failureMarkers []string
	temperature    float64
}

// ModelStrategyOption は ModelStrategy のオプション設定
type ModelStrategyOption func(*ModelStrategy)

// WithQuoteTemperature は抽出時の temperature を設定する
func WithQuoteTemperature(t float64) ModelStrategyOption {
	return func(s *ModelStrategy) {
		s.temperature = t
	}
}

// NewModelStrategy はプロンプトテンプレートを解析して ModelStrategy を作成する
func NewModelStrategy(completer llm.Completer, retrier *resilience.Retrier, promptTemplate string, failureMarkers []string, minLength int, opts ...ModelStrategyOption) (*ModelStrategy, error) {
	tmpl, err := template.New("quote").Option("missingkey=error").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quote template: %w", err)
	}
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	s := &ModelStrategy{
		completer:      completer,
		retrier:        retrier,
		prompt:         tmpl,
		minLength:      minLength,
		failureMarkers: failureMarkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tier は TierModel を返す
func (s *ModelStrategy) Tier() Tier {
	return TierModel
}

// Extract はモデルの抜粋を検証して返す
// 短すぎる応答や失敗を示す語句を含む応答は ErrNoQuote とする
func (s *ModelStrategy) Extract(ctx context.Context, req Request) (string, error) {
	var sb strings.Builder
	data := struct {
		Query      string
		Answer     string
		SourceText string
	}{Query: req.Query, Answer: req.Answer, SourceText: req.SourceText}
	if err := s.prompt.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render quote prompt: %w", err)
	}

	completion := llm.CompletionRequest{User: sb.String(), Temperature: s.temperature}
	text, err := resilience.Call(ctx, s.retrier, "extract_quote", func(ctx context.Context) (string, error) {
		return s.completer.Complete(ctx, completion)
	})
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < s.minLength {
		return "", fmt.Errorf("%w: extraction too short (%d chars)", ErrNoQuote, n)
	}
	if answer.ContainsMarker(text, s.failureMarkers) {
		return "", fmt.Errorf("%w: model reported no extraction", ErrNoQuote)
	}
	return text, nil
}

// RegisteredStrategy はタスクごとに登録済みの引用を返す
type RegisteredStrategy struct {
	quotes map[int]string
}

// NewRegisteredStrategy は新しい RegisteredStrategy を作成する
func NewRegisteredStrategy(quotes map[int]string) *RegisteredStrategy {
	return &RegisteredStrategy{quotes: quotes}
}

// Tier は TierRegistered を返す
func (s *RegisteredStrategy) Tier() Tier {
	return TierRegistered
}

// Extract は TaskID に登録された引用を返す
func (s *RegisteredStrategy) Extract(_ context.Context, req Request) (string, error) {
	q, ok := s.quotes[req.TaskID]
	if !ok || strings.TrimSpace(q) == "" {
		return "", fmt.Errorf("%w: no registered quote for task %d", ErrNoQuote, req.TaskID)
	}
	return q, nil
}

// GenericStrategy は固定の案内文を返す
type GenericStrategy struct {
	text string
}

// NewGenericStrategy は新しい GenericStrategy を作成する
func NewGenericStrategy(text string) *GenericStrategy {
	return &GenericStrategy{text: text}
}

// Tier は TierGeneric を返す
func (s *GenericStrategy) Tier() Tier {
	return TierGeneric
}

// Extract は固定の案内文を返す
func (s *GenericStrategy) Extract(context.Context, Request) (string, error) {
	if s.text == "" {
		return "", ErrNoQuote
	}
	return s.text, nil
}
