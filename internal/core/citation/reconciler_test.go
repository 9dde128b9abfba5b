package citation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/steuer-rag/internal/core/retrieval"
	"github.com/jinford/steuer-rag/internal/core/statute"
	"github.com/jinford/steuer-rag/internal/platform/diagnostics"
)

var (
	chunk6 = statute.Chunk{
		Text:               "(2) Die Anschaffungs- oder Herstellungskosten von abnutzbaren beweglichen Wirtschaftsgütern des Anlagevermögens können in voller Höhe als Betriebsausgaben abgezogen werden, wenn sie 800 Euro nicht übersteigen.",
		LegalReference:     "EStG §6",
		LegalReferenceFull: "EStG §6 Abs. 2",
	}
	chunk9 = statute.Chunk{
		Text: "(1) Werbungskosten sind Aufwendungen zur Erwerbung, Sicherung und Erhaltung der Einnahmen. Werbungskosten sind auch\n" +
			"1. Schuldzinsen und auf besonderen Verpflichtungsgründen beruhende Renten;\n" +
			"5. notwendige Mehraufwendungen, die einem Arbeitnehmer wegen einer beruflich veranlassten doppelten Haushaltsführung entstehen;\n" +
			"(2) Durch die Entfernungspauschalen sind sämtliche Aufwendungen abgegolten.",
		LegalReference:     "EStG §9",
		LegalReferenceFull: "EStG §9 Abs. 1",
	}
	chunk20 = statute.Chunk{
		Text:           "(8) Soweit Einkünfte der in Absatz 1 bezeichneten Art zu anderen Einkunftsarten gehören, sind sie diesen zuzurechnen.\n(9) Bei der Ermittlung der Einkünfte aus Kapitalvermögen ist als Werbungskosten ein Betrag von 1000 Euro abzuziehen (Sparer-Pauschbetrag);",
		LegalReference: "EStG §20",
	}
	chunk35a = statute.Chunk{
		Text:               "(3) Für die Inanspruchnahme von Handwerkerleistungen für Renovierungs-, Erhaltungs- und Modernisierungsmaßnahmen ermäßigt sich die tarifliche Einkommensteuer um 20 Prozent, höchstens jedoch um 1200 Euro.",
		LegalReference:     "EStG §35a",
		LegalReferenceFull: "EStG §35a Abs. 3",
	}
)

func ranked(chunks ...statute.Chunk) []retrieval.Candidate {
	out := make([]retrieval.Candidate, 0, len(chunks))
	for i, c := range chunks {
		out = append(out, retrieval.Candidate{Chunk: c, Rank: i, Distance: float64(i)})
	}
	return out
}

func newTestReconciler() (*Reconciler, *diagnostics.Memory) {
	rec := &diagnostics.Memory{}
	return NewReconciler(DefaultThresholds(),
		WithReconcilerLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		WithReconcilerRecorder(rec),
	), rec
}

func TestReconciler_Select(t *testing.T) {
	tests := []struct {
		name       string
		answer     string
		candidates []retrieval.Candidate
		wantRef    string
		wantReason SelectionReason
		wantEvents []diagnostics.EventType
	}{
		{
			name:       "引用なしは先頭候補",
			answer:     "Das ist möglich.",
			candidates: ranked(chunk35a, chunk20),
			wantRef:    "EStG §35a",
			wantReason: SelectedNoCitation,
			wantEvents: []diagnostics.EventType{},
		},
		{
			name:       "Paragraph 番号の完全一致",
			answer:     "Die Kosten sind abziehbar (§20 Abs. 9 EStG).",
			candidates: ranked(chunk35a, chunk20),
			wantRef:    "EStG §20",
			wantReason: SelectedExact,
			wantEvents: []diagnostics.EventType{},
		},
		{
			name:       "完全一致は Absatz マーカーより優先",
			answer:     "Der Sparer-Pauschbetrag beträgt 1000 Euro (§9 EStG).",
			candidates: ranked(chunk20, chunk9),
			wantRef:    "EStG §9",
			wantReason: SelectedExact,
			wantEvents: []diagnostics.EventType{},
		},
		{
			name:       "Absatz を Paragraph と取り違えた引用",
			answer:     "Der Sparer-Pauschbetrag beträgt 1000 Euro (§9 EStG).",
			candidates: ranked(chunk35a, chunk20),
			wantRef:    "EStG §20",
			wantReason: SelectedSubsection,
			wantEvents: []diagnostics.EventType{diagnostics.EventAbsatzParagraphConfusion},
		},
		{
			name:       "内容語の重複が少なければ先頭候補",
			answer:     "Siehe §9.",
			candidates: ranked(chunk35a, chunk20),
			wantRef:    "EStG §35a",
			wantReason: SelectedFallback,
			wantEvents: []diagnostics.EventType{diagnostics.EventUnclearDocumentSelection},
		},
		{
			name:       "該当なしは先頭候補",
			answer:     "Nach §15 EStG ist das steuerfrei.",
			candidates: ranked(chunk6, chunk35a),
			wantRef:    "EStG §6",
			wantReason: SelectedFallback,
			wantEvents: []diagnostics.EventType{diagnostics.EventUnclearDocumentSelection},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec := newTestReconciler()

			got, ok := r.Select(context.Background(), tt.answer, tt.candidates)
			require.True(t, ok)

			assert.Equal(t, tt.wantRef, got.Candidate.Chunk.LegalReference)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.wantEvents, rec.Types())
		})
	}
}

func TestReconciler_SelectNoCandidates(t *testing.T) {
	r, _ := newTestReconciler()
	_, ok := r.Select(context.Background(), "§20", nil)
	assert.False(t, ok)
}

func TestReconciler_SelectThresholdsConfigurable(t *testing.T) {
	r := NewReconciler(Thresholds{MinOverlapWords: 10, MinOverlapRatio: 0.9, MinListItemSubsection: 5},
		WithReconcilerLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)

	got, ok := r.Select(context.Background(), "Der Sparer-Pauschbetrag beträgt 1000 Euro (§9 EStG).", ranked(chunk35a, chunk20))
	require.True(t, ok)
	assert.Equal(t, SelectedFallback, got.Reason)
}

func TestReconciler_Repair(t *testing.T) {
	tests := []struct {
		name       string
		answer     string
		chunk      statute.Chunk
		want       string
		wantKind   RepairKind
		wantSub    string
		wantEvents []diagnostics.EventType
	}{
		{
			name:       "正しい引用は変更しない",
			answer:     "Der Laptop kann sofort abgeschrieben werden (§6 Abs. 2 EStG).",
			chunk:      chunk6,
			want:       "Der Laptop kann sofort abgeschrieben werden (§6 Abs. 2 EStG).",
			wantKind:   RepairNone,
			wantSub:    "2",
			wantEvents: []diagnostics.EventType{},
		},
		{
			name:       "Absatz を Paragraph と取り違えた引用を修正",
			answer:     "Der Sparer-Pauschbetrag beträgt 1000 Euro (§9 EStG).",
			chunk:      chunk20,
			want:       "Der Sparer-Pauschbetrag beträgt 1000 Euro (§20 Abs. 9 EStG).",
			wantKind:   RepairSubsection,
			wantSub:    "9",
			wantEvents: []diagnostics.EventType{diagnostics.EventCitationFixedAbsatz},
		},
		{
			name:       "Nummer を Absatz と取り違えた引用を修正",
			answer:     "Die Unterkunftskosten sind bis 1000 Euro abziehbar (§9 Abs. 5 EStG).",
			chunk:      chunk9,
			want:       "Die Unterkunftskosten sind bis 1000 Euro abziehbar (§9 Abs. 1 Nr. 5 EStG).",
			wantKind:   RepairListItem,
			wantSub:    "1",
			wantEvents: []diagnostics.EventType{diagnostics.EventCitationFixedNummer},
		},
		{
			name:       "Absatz 5 未満は Nummer とみなさない",
			answer:     "Siehe §9 Abs. 1 EStG.",
			chunk:      chunk9,
			want:       "Siehe §9 Abs. 1 EStG.",
			wantKind:   RepairNone,
			wantSub:    "1",
			wantEvents: []diagnostics.EventType{},
		},
		{
			name:       "確証がなければ修正しない",
			answer:     "Nach §15 EStG ist das steuerfrei.",
			chunk:      chunk20,
			want:       "Nach §15 EStG ist das steuerfrei.",
			wantKind:   RepairUnclear,
			wantEvents: []diagnostics.EventType{diagnostics.EventCitationUnclearNoFix},
		},
		{
			name:       "引用がなければ何もしない",
			answer:     "Das ist steuerfrei.",
			chunk:      chunk20,
			want:       "Das ist steuerfrei.",
			wantKind:   RepairNoCitation,
			wantEvents: []diagnostics.EventType{},
		},
		{
			name:       "最初の引用だけを修正",
			answer:     "Siehe §9 EStG sowie §35a EStG.",
			chunk:      chunk20,
			want:       "Siehe §20 Abs. 9 EStG sowie §35a EStG.",
			wantKind:   RepairSubsection,
			wantSub:    "9",
			wantEvents: []diagnostics.EventType{diagnostics.EventCitationFixedAbsatz},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec := newTestReconciler()

			got := r.Repair(context.Background(), tt.answer, tt.chunk)

			assert.Equal(t, tt.want, got.Answer)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantSub, got.Subsection)
			assert.Equal(t, tt.wantEvents, rec.Types())
		})
	}
}

func TestReconciler_RepairIsIdempotent(t *testing.T) {
	cases := []struct {
		answer string
		chunk  statute.Chunk
	}{
		{answer: "Der Sparer-Pauschbetrag beträgt 1000 Euro (§9 EStG).", chunk: chunk20},
		{answer: "Die Unterkunftskosten sind abziehbar (§9 Abs. 5 EStG).", chunk: chunk9},
		{answer: "Der Laptop kann sofort abgeschrieben werden (§6 Abs. 2 EStG).", chunk: chunk6},
	}

	r, _ := newTestReconciler()
	for _, c := range cases {
		once := r.Repair(context.Background(), c.answer, c.chunk)
		twice := r.Repair(context.Background(), once.Answer, c.chunk)

		assert.Equal(t, once.Answer, twice.Answer)
		assert.False(t, twice.Changed())
	}
}

func TestReconciler_RepairWithoutReference(t *testing.T) {
	r, _ := newTestReconciler()
	got := r.Repair(context.Background(), "§9 EStG", statute.Chunk{Text: "(9) Text"})
	assert.Equal(t, RepairNoReference, got.Kind)
	assert.Equal(t, "§9 EStG", got.Answer)
}
