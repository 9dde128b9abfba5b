package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType は診断イベントの種類
type EventType string

const (
	EventIndexLoadFailed          EventType = "index_load_failed"
	EventAbsatzParagraphConfusion EventType = "absatz_paragraph_confusion_fixed"
	EventUnclearDocumentSelection EventType = "unclear_document_selection"
	EventCitationFixedAbsatz      EventType = "citation_fixed_absatz_confusion"
	EventCitationFixedNummer      EventType = "citation_fixed_nummer_as_absatz"
	EventCitationUnclearNoFix     EventType = "citation_unclear_no_fix_applied"
	EventQuoteFallbackHardcoded   EventType = "quote_fallback_hardcoded"
	EventQuoteFallbackGeneric     EventType = "quote_fallback_generic"
	EventQuoteExtractionFailure   EventType = "quote_extraction_failure"
	EventRAGTimeout               EventType = "rag_error_timeout"
	EventRAGInvocationFailed      EventType = "rag_error_invocation_failed"
	EventRAGPromptFailed          EventType = "rag_error_prompt_failed"
	EventAPIOverload              EventType = "api_overload_error"
)

// Event はオフライン分析用に記録する診断イベント
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	TaskID    int       `json:"task_id,omitempty"`
	Query     string    `json:"query,omitempty"`
	Kind      string    `json:"error_kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Recorder は診断イベントの記録先
type Recorder interface {
	Record(ctx context.Context, event Event)
}

type scopeKey struct{}

// Scope はリクエスト単位で全イベントに付与する識別情報
type Scope struct {
	RequestID string
	TaskID    int
	Query     string
}

// WithScope は ctx に Scope を格納する
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom は ctx に格納された Scope を返す
func ScopeFrom(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	return scope, ok
}

// fill は event の空欄を ctx の Scope で補う
func fill(ctx context.Context, event Event) Event {
	scope, ok := ScopeFrom(ctx)
	if !ok {
		return event
	}
	if event.RequestID == "" {
		event.RequestID = scope.RequestID
	}
	if event.TaskID == 0 {
		event.TaskID = scope.TaskID
	}
	if event.Query == "" {
		event.Query = scope.Query
	}
	return event
}

// Nop は何も記録しない Recorder
type Nop struct{}

// Record は何もしない
func (Nop) Record(context.Context, Event) {}

// FileRecorder は日付ごとの JSONL ファイルに診断イベントを追記する
type FileRecorder struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	file    *os.File
	fileDay string
}

// FileRecorderOption は FileRecorder のオプション設定
type FileRecorderOption func(*FileRecorder)

// WithRecorderLogger はロガーを設定する
func WithRecorderLogger(logger *slog.Logger) FileRecorderOption {
	return func(r *FileRecorder) {
		r.logger = logger
	}
}

// WithRecorderClock は現在時刻の取得を差し替える
func WithRecorderClock(now func() time.Time) FileRecorderOption {
	return func(r *FileRecorder) {
		r.now = now
	}
}

// NewFileRecorder は新しい FileRecorder を作成する
func NewFileRecorder(dir string, opts ...FileRecorderOption) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics directory: %w", err)
	}

	r := &FileRecorder{
		dir:    dir,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// New は dir が空なら Nop を、そうでなければ FileRecorder を返す
func New(dir string, opts ...FileRecorderOption) (Recorder, error) {
	if dir == "" {
		return Nop{}, nil
	}
	return NewFileRecorder(dir, opts...)
}

// Record はイベントを1行の JSON として追記する
// 書き込みに失敗してもリクエスト処理は止めず、ログに警告を残す
func (r *FileRecorder) Record(ctx context.Context, event Event) {
	event = fill(ctx, event)
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}

	line, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("failed to marshal diagnostic event", "type", event.Type, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.fileFor(event.Timestamp)
	if err != nil {
		r.logger.Warn("failed to open diagnostics file", "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		r.logger.Warn("failed to write diagnostic event", "type", event.Type, "error", err)
	}
}

// 呼び出し側でロックを取得していること
func (r *FileRecorder) fileFor(ts time.Time) (*os.File, error) {
	day := ts.Format("2006-01-02")
	if r.file != nil && r.fileDay == day {
		return r.file, nil
	}

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	path := filepath.Join(r.dir, fmt.Sprintf("rag_events_%s.jsonl", day))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	r.file = f
	r.fileDay = day
	return f, nil
}

// Close はファイルを閉じる
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Memory はメモリ上にイベントを保持する Recorder
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Record はイベントを保持する
func (m *Memory) Record(ctx context.Context, event Event) {
	event = fill(ctx, event)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events は記録済みイベントのコピーを返す
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types は記録済みイベントの種類を順に返す
func (m *Memory) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]EventType, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.Type)
	}
	return types
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*FileRecorder)(nil)
	_ Recorder = (*Memory)(nil)
)
