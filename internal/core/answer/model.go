package answer

import (
	"fmt"
	"strings"
	"time"
)

// Turn は会話履歴の1往復。呼び出し側が保持し、コアは永続化しない
type Turn struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// Prompt はモデルに渡す組み立て済みのプロンプト
type Prompt struct {
	System       string
	User         string
	HistoryTurns int // User に含めた履歴の件数
	Tokens       int // TokenCounter 未設定時は 0
}

// PromptError はプロンプト組み立て時のエラー。リトライ対象外
type PromptError struct {
	Op  string
	Err error
}

func (e *PromptError) Error() string {
	return fmt.Sprintf("prompt %s failed: %v", e.Op, e.Err)
}

func (e *PromptError) Unwrap() error {
	return e.Err
}

// TokenCounter はプロンプトのトークン数を数える
type TokenCounter interface {
	Count(text string) int
}

// ContainsMarker は text が markers のいずれかを含むかを大文字小文字を区別せずに判定する
func ContainsMarker(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

var germanMonths = [...]string{
	"Januar", "Februar", "März", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Dezember",
}

// GermanMonth は "Oktober 2025" 形式の年月を返す
func GermanMonth(t time.Time) string {
	return fmt.Sprintf("%s %d", germanMonths[t.Month()-1], t.Year())
}
