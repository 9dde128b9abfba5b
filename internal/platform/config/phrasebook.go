package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed phrasebook.yaml
var defaultPhraseBook []byte

// ErrInvalidPhraseBook は文言定義が不完全な場合に返される
var ErrInvalidPhraseBook = errors.New("invalid phrase book")

// PhraseBook は言語依存の文言・判定語句・プロンプトテンプレートを保持する
// 判定語句はロジックではなく設定データとして扱う
type PhraseBook struct {
	Refusal              string            `yaml:"refusal"`
	RefusalMarkers       []string          `yaml:"refusal_markers"`
	HistoryFilterMarkers []string          `yaml:"history_filter_markers"`
	QuoteFailureMarkers  []string          `yaml:"quote_failure_markers"`
	GenericQuote         string            `yaml:"generic_quote"`
	FallbackQuotes       map[int]string    `yaml:"fallback_quotes"`
	Messages             Messages          `yaml:"messages"`
	Laws                 map[string]string `yaml:"laws"`
	Sources              map[string]string `yaml:"sources"` // ファイル名 → 公式URL
	Prompts              Prompts           `yaml:"prompts"`
}

// Messages は劣化応答でユーザーに表示する文言
type Messages struct {
	NoAnswer string `yaml:"no_answer"`
	Busy     string `yaml:"busy"`
	Rephrase string `yaml:"rephrase"`
	Timeout  string `yaml:"timeout"`
	Retry    string `yaml:"retry"`
}

// Prompts は text/template 形式のプロンプト
type Prompts struct {
	System  string `yaml:"system"`
	History string `yaml:"history"`
	Quote   string `yaml:"quote"`
}

// DefaultPhraseBook は埋め込みの既定文言を返す
func DefaultPhraseBook() (*PhraseBook, error) {
	return ParsePhraseBook(defaultPhraseBook)
}

// LoadPhraseBook はファイルから文言を読み込む。path が空なら既定文言を返す
func LoadPhraseBook(path string) (*PhraseBook, error) {
	if path == "" {
		return DefaultPhraseBook()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase book: %w", err)
	}
	return ParsePhraseBook(data)
}

// ParsePhraseBook は YAML を解析して検証する
func ParsePhraseBook(data []byte) (*PhraseBook, error) {
	var pb PhraseBook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("failed to parse phrase book: %w", err)
	}

	// 空の代替引用は登録されていないものとして扱う
	for task, quote := range pb.FallbackQuotes {
		if strings.TrimSpace(quote) == "" {
			delete(pb.FallbackQuotes, task)
		}
	}

	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

// RefusalPhrases は拒否応答の判定に使う定型文を返す
// 履歴フィルタ用の語句とは異なり、文中の否定表現には反応しない
func (pb *PhraseBook) RefusalPhrases() []string {
	phrases := make([]string, 0, len(pb.RefusalMarkers)+1)
	phrases = append(phrases, pb.Refusal)
	for _, m := range pb.RefusalMarkers {
		if strings.TrimSpace(m) != "" {
			phrases = append(phrases, m)
		}
	}
	return phrases
}

// Validate は必須の文言とテンプレートを検証する
func (pb *PhraseBook) Validate() error {
	required := map[string]string{
		"refusal":            pb.Refusal,
		"generic_quote":      pb.GenericQuote,
		"messages.no_answer": pb.Messages.NoAnswer,
		"messages.busy":      pb.Messages.Busy,
		"messages.rephrase":  pb.Messages.Rephrase,
		"messages.timeout":   pb.Messages.Timeout,
		"messages.retry":     pb.Messages.Retry,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidPhraseBook, key)
		}
	}

	templates := map[string]string{
		"system":  pb.Prompts.System,
		"history": pb.Prompts.History,
		"quote":   pb.Prompts.Quote,
	}
	for name, text := range templates {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: prompts.%s is empty", ErrInvalidPhraseBook, name)
		}
		if _, err := template.New(name).Option("missingkey=error").Parse(text); err != nil {
			return fmt.Errorf("%w: prompts.%s: %v", ErrInvalidPhraseBook, name, err)
		}
	}

	return nil
}
