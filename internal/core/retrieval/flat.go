package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/jinford/steuer-rag/internal/core/statute"
)

// Entry はチャンクとその Embedding
type Entry struct {
	Chunk  statute.Chunk
	Vector []float32
}

// FlatIndex は全件を走査する L2 距離のインデックス
// 対象は少数の法令文書に限られるため近似探索は行わない
type FlatIndex struct {
	entries   []Entry
	dimension int
}

// NewFlatIndex は entries から FlatIndex を作成する
func NewFlatIndex(entries []Entry) (*FlatIndex, error) {
	idx := &FlatIndex{entries: entries}
	for i, e := range entries {
		if i == 0 {
			idx.dimension = len(e.Vector)
			continue
		}
		if len(e.Vector) != idx.dimension {
			return nil, fmt.Errorf("%w: entry %d has %d, want %d", ErrDimensionMismatch, i, len(e.Vector), idx.dimension)
		}
	}
	return idx, nil
}

// Len は登録件数を返す
func (f *FlatIndex) Len() int {
	return len(f.entries)
}

// Search は二乗 L2 距離の昇順で最大 k 件を返す
func (f *FlatIndex) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	if len(f.entries) == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(vector) != f.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), f.dimension)
	}

	hits := make([]Hit, 0, len(f.entries))
	for _, e := range f.entries {
		hits = append(hits, Hit{Chunk: e.Chunk, Distance: squaredL2(vector, e.Vector)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

var _ Index = (*FlatIndex)(nil)
