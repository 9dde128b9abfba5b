package answer

import (
	"errors"
	"strings"
	"text/template"
	"time"

	"github.com/jinford/steuer-rag/internal/core/retrieval"
)

// DefaultHistoryTurns は文脈化に使う直近の履歴件数
const DefaultHistoryTurns = 4

// PromptConfig はプロンプト組み立ての設定
type PromptConfig struct {
	SystemTemplate       string
	HistoryTemplate      string
	Refusal              string
	HistoryFilterMarkers []string
	ReferenceDate        time.Time
	HistoryTurns         int
	MaxPromptTokens      int // 0 は無制限
}

// PromptBuilder は検索結果と会話履歴からプロンプトを組み立てる
type PromptBuilder struct {
	system         *template.Template
	history        *template.Template
	refusal        string
	filterMarkers  []string
	referenceMonth string
	historyTurns   int
	maxTokens      int
	counter        TokenCounter
}

// NewPromptBuilder はテンプレートを解析して PromptBuilder を作成する
// counter が nil の場合はトークン数による履歴の削減を行わない
func NewPromptBuilder(cfg PromptConfig, counter TokenCounter) (*PromptBuilder, error) {
	system, err := template.New("system").Option("missingkey=error").Parse(cfg.SystemTemplate)
	if err != nil {
		return nil, &PromptError{Op: "parse system template", Err: err}
	}
	history, err := template.New("history").Option("missingkey=error").Parse(cfg.HistoryTemplate)
	if err != nil {
		return nil, &PromptError{Op: "parse history template", Err: err}
	}

	turns := cfg.HistoryTurns
	if turns <= 0 {
		turns = DefaultHistoryTurns
	}

	return &PromptBuilder{
		system:         system,
		history:        history,
		refusal:        cfg.Refusal,
		filterMarkers:  cfg.HistoryFilterMarkers,
		referenceMonth: GermanMonth(cfg.ReferenceDate),
		historyTurns:   turns,
		maxTokens:      cfg.MaxPromptTokens,
		counter:        counter,
	}, nil
}

// UsefulHistory は直近の履歴から回答拒否型のターンを除いたものを返す
func (b *PromptBuilder) UsefulHistory(history []Turn) []Turn {
	if len(history) > b.historyTurns {
		history = history[len(history)-b.historyTurns:]
	}

	useful := make([]Turn, 0, len(history))
	for _, t := range history {
		if ContainsMarker(t.Answer, b.filterMarkers) {
			continue
		}
		useful = append(useful, t)
	}
	return useful
}

// Contextualize は有用な履歴があれば履歴付きのクエリを、なければ元のクエリを返す
func (b *PromptBuilder) Contextualize(query string, history []Turn) (string, error) {
	return b.contextualize(query, b.UsefulHistory(history))
}

func (b *PromptBuilder) contextualize(query string, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return query, nil
	}

	var sb strings.Builder
	data := struct {
		Turns []Turn
		Query string
	}{Turns: turns, Query: query}
	if err := b.history.Execute(&sb, data); err != nil {
		return "", &PromptError{Op: "render history", Err: err}
	}
	return strings.TrimSpace(sb.String()), nil
}

// Build はシステムプロンプトとユーザー入力を組み立てる
// トークン上限を超える場合は古い履歴から削る
func (b *PromptBuilder) Build(query string, candidates []retrieval.Candidate, history []Turn) (Prompt, error) {
	if strings.TrimSpace(query) == "" {
		return Prompt{}, &PromptError{Op: "build", Err: errors.New("query is empty")}
	}

	texts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		texts = append(texts, c.Chunk.Text)
	}

	var sb strings.Builder
	data := struct {
		ReferenceMonth string
		Refusal        string
		Context        string
	}{
		ReferenceMonth: b.referenceMonth,
		Refusal:        b.refusal,
		Context:        strings.Join(texts, "\n\n"),
	}
	if err := b.system.Execute(&sb, data); err != nil {
		return Prompt{}, &PromptError{Op: "render system", Err: err}
	}
	system := sb.String()

	turns := b.UsefulHistory(history)
	for {
		user, err := b.contextualize(query, turns)
		if err != nil {
			return Prompt{}, err
		}

		p := Prompt{System: system, User: user, HistoryTurns: len(turns)}
		if b.counter == nil || b.maxTokens <= 0 {
			return p, nil
		}

		p.Tokens = b.counter.Count(system) + b.counter.Count(user)
		if p.Tokens <= b.maxTokens || len(turns) == 0 {
			return p, nil
		}
		turns = turns[1:]
	}
}
