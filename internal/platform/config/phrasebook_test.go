package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPhraseBook(t *testing.T) {
	pb, err := DefaultPhraseBook()
	require.NoError(t, err)

	assert.Contains(t, pb.Refusal, "enthalten keine Informationen")
	assert.Equal(t, []string{pb.Refusal, "Bitte stellen Sie erneut die Frage"}, pb.RefusalPhrases())
	assert.NotContains(t, pb.RefusalPhrases(), "enthalten keine")
	assert.Contains(t, pb.HistoryFilterMarkers, "bitte stellen sie")
	assert.Contains(t, pb.QuoteFailureMarkers, "KEINE_EXTRAKTION")
	assert.Len(t, pb.FallbackQuotes, 4)
	for task, quote := range pb.FallbackQuotes {
		assert.NotEmpty(t, strings.TrimSpace(quote), "task %d", task)
	}
	assert.Equal(t, "EStG", pb.Laws["estg"])
	assert.Equal(t, "https://www.gesetze-im-internet.de/estg/__35a.html", pb.Sources["estg_35a.txt"])
	assert.Contains(t, pb.Prompts.System, "{{.Context}}")
	assert.Contains(t, pb.Prompts.Quote, "KEINE_EXTRAKTION_MÖGLICH")
}

func TestParsePhraseBook_DropsEmptyFallbackQuotes(t *testing.T) {
	pb, err := DefaultPhraseBook()
	require.NoError(t, err)

	data := []byte(strings.Join([]string{
		`refusal: "keine Info"`,
		`generic_quote: "generisch"`,
		`fallback_quotes:`,
		`  1: "Zitat eins"`,
		`  2: "   "`,
		`messages: {no_answer: a, busy: b, rephrase: c, timeout: d, retry: e}`,
		`prompts:`,
		`  system: "{{.Context}}"`,
		`  history: "{{.Query}}"`,
		`  quote: "{{.SourceText}}"`,
	}, "\n"))

	got, err := ParsePhraseBook(data)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "Zitat eins"}, got.FallbackQuotes)
	assert.NotEqual(t, pb.Refusal, got.Refusal)
}

func TestParsePhraseBook_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "必須文言が空", data: `refusal: ""`},
		{name: "テンプレートが壊れている", data: strings.Join([]string{
			`refusal: r`,
			`generic_quote: g`,
			`messages: {no_answer: a, busy: b, rephrase: c, timeout: d, retry: e}`,
			`prompts: {system: "{{.Context", history: h, quote: q}`,
		}, "\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePhraseBook([]byte(tt.data))
			require.ErrorIs(t, err, ErrInvalidPhraseBook)
		})
	}
}

func TestLoadPhraseBook_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.yaml")
	require.NoError(t, os.WriteFile(path, defaultPhraseBook, 0o644))

	pb, err := LoadPhraseBook(path)
	require.NoError(t, err)
	assert.Len(t, pb.FallbackQuotes, 4)

	_, err = LoadPhraseBook(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
