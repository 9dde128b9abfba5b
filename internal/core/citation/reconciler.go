package citation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jinford/steuer-rag/internal/core/retrieval"
	"github.com/jinford/steuer-rag/internal/core/statute"
	"github.com/jinford/steuer-rag/internal/platform/diagnostics"
)

// Reconciler は生成された回答の引用とチャンクのメタデータを突き合わせる
// モデルを再度呼び出さず、テキスト上の整合性だけを補正する
type Reconciler struct {
	thresholds Thresholds
	logger     *slog.Logger
	recorder   diagnostics.Recorder
}

// ReconcilerOption は Reconciler のオプション設定
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger はロガーを設定する
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithReconcilerRecorder は診断イベントの記録先を設定する
func WithReconcilerRecorder(recorder diagnostics.Recorder) ReconcilerOption {
	return func(r *Reconciler) {
		r.recorder = recorder
	}
}

// NewReconciler は新しい Reconciler を作成する
func NewReconciler(thresholds Thresholds, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		thresholds: thresholds,
		logger:     slog.Default(),
		recorder:   diagnostics.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.recorder == nil {
		r.recorder = diagnostics.Nop{}
	}
	return r
}

// Select は回答が実際に根拠とした候補を推定する
// 候補が空の場合は false を返す
func (r *Reconciler) Select(ctx context.Context, answer string, candidates []retrieval.Candidate) (Selection, bool) {
	if len(candidates) == 0 {
		return Selection{}, false
	}

	cited := statute.CitedSections(answer)
	if len(cited) == 0 {
		return Selection{Candidate: candidates[0], Reason: SelectedNoCitation}, true
	}

	var answerWords map[string]struct{}
	for _, number := range cited {
		for _, c := range candidates {
			if section, ok := c.Chunk.Section(); ok && section == number {
				r.logger.Debug("citation matched candidate section", "cited", number, "reference", c.Chunk.LegalReference)
				return Selection{Candidate: c, Reason: SelectedExact, Cited: number}, true
			}
		}

		for _, c := range candidates {
			if !statute.HasSubsectionMarker(c.Chunk.Text, number) {
				continue
			}

			if answerWords == nil {
				answerWords = statute.ContentWords(answer)
			}
			overlap, ratio := statute.Overlap(answerWords, statute.ContentWords(c.Chunk.Text))
			if overlap < r.thresholds.MinOverlapWords && ratio < r.thresholds.MinOverlapRatio {
				continue
			}

			r.logger.Info("subsection cited as section",
				"cited", number,
				"reference", c.Chunk.LegalReference,
				"overlap", overlap,
				"ratio", ratio,
			)
			r.recorder.Record(ctx, diagnostics.Event{
				Type:   diagnostics.EventAbsatzParagraphConfusion,
				Detail: fmt.Sprintf("citation §%s resolved to %s Abs. %s (overlap=%d ratio=%.2f)", number, c.Chunk.LegalReference, number, overlap, ratio),
			})
			return Selection{Candidate: c, Reason: SelectedSubsection, Cited: number, Overlap: overlap, Ratio: ratio}, true
		}
	}

	r.logger.Info("no candidate matched citations, using top candidate", "cited", cited)
	r.recorder.Record(ctx, diagnostics.Event{
		Type:   diagnostics.EventUnclearDocumentSelection,
		Detail: fmt.Sprintf("citations %v did not match any candidate", cited),
	})
	return Selection{Candidate: candidates[0], Reason: SelectedFallback}, true
}

// Repair は回答中の最初の引用を選択済みチャンクに合わせて書き換える
// 確証がない場合は書き換えず、引用のない回答に引用を加えることもない
func (r *Reconciler) Repair(ctx context.Context, answer string, chunk statute.Chunk) Repair {
	result := Repair{Answer: answer, Kind: RepairNone}

	section, ok := chunk.Section()
	if !ok {
		result.Kind = RepairNoReference
		return result
	}

	c, ok := statute.ParseCitation(answer)
	if !ok {
		result.Kind = RepairNoCitation
		return result
	}
	result.Original = c.Raw(answer)
	law := statute.LawOf(chunk.LegalReference)

	if c.Section != section {
		if !statute.HasSubsectionMarker(chunk.Text, c.Section) {
			r.logger.Info("cited section not found in selected chunk, leaving citation",
				"citation", result.Original,
				"reference", chunk.LegalReference,
			)
			r.recorder.Record(ctx, diagnostics.Event{
				Type:   diagnostics.EventCitationUnclearNoFix,
				Detail: fmt.Sprintf("cited §%s in %s without matching subsection", c.Section, chunk.LegalReference),
			})
			result.Kind = RepairUnclear
			return result
		}

		result.Replacement = canonical(section, c.Section, "", law)
		result.Answer = c.Replace(answer, result.Replacement)
		result.Kind = RepairSubsection
		result.Subsection = c.Section

		r.logger.Info("citation rewritten", "from", result.Original, "to", result.Replacement)
		r.recorder.Record(ctx, diagnostics.Event{
			Type:   diagnostics.EventCitationFixedAbsatz,
			Detail: fmt.Sprintf("%q -> %q", result.Original, result.Replacement),
		})
		return result
	}

	if r.isListItemConfusion(chunk.Text, c.Subsection) {
		result.Replacement = canonical(section, "1", c.Subsection, law)
		result.Answer = c.Replace(answer, result.Replacement)
		result.Kind = RepairListItem
		result.Subsection = "1"

		r.logger.Info("citation rewritten", "from", result.Original, "to", result.Replacement)
		r.recorder.Record(ctx, diagnostics.Event{
			Type:   diagnostics.EventCitationFixedNummer,
			Detail: fmt.Sprintf("%q -> %q", result.Original, result.Replacement),
		})
		return result
	}

	result.Subsection = c.Subsection
	return result
}

// isListItemConfusion は Abs. N が実際には Abs. 1 の N 番目の項目を指しているかを判定する
// N 自体が Absatz として存在する場合は取り違えとみなさない
func (r *Reconciler) isListItemConfusion(text, subsection string) bool {
	if subsection == "" {
		return false
	}
	n, err := strconv.Atoi(subsection)
	if err != nil || n < r.thresholds.MinListItemSubsection {
		return false
	}
	if statute.HasSubsectionMarker(text, subsection) {
		return false
	}
	return statute.HasListItemInFirstSubsection(text, subsection)
}

// canonical は "§20 Abs. 9 EStG" 形式の引用を組み立てる
func canonical(section, subsection, item, law string) string {
	s := "§" + section + " Abs. " + subsection
	if item != "" {
		s += " Nr. " + item
	}
	if law != "" {
		s += " " + law
	}
	return s
}
