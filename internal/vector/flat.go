// Package vector provides the exact in-memory similarity index over story embeddings.
package vector

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/hyperjump/storyfind/internal/models"
	"github.com/viant/vec/search"
)

// Hit is one search result. Position is the entry id inside the index.
type Hit struct {
	Position int
	Document *models.Document
	Score    float64
}

// FlatIndex is an immutable brute-force index of N vectors of dimension D with one Document
// per vector. Concurrent searches need no locking.
type FlatIndex struct {
	metric     Metric
	dimensions int
	vectors    []search.Float32s
	magnitudes []float32
	docs       []*models.Document
}

// NewFlatIndex copies vectors into a new index. vectors and docs must have equal length and
// every vector must have the given dimension.
func NewFlatIndex(dimensions int, metric Metric, vectors [][]float32, docs []*models.Document) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidArgument, dimensions)
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: unknown metric %d", ErrInvalidArgument, uint16(metric))
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: %d vectors but %d documents", ErrInvalidArgument, len(vectors), len(docs))
	}
	idx := &FlatIndex{
		metric:     metric,
		dimensions: dimensions,
		vectors:    make([]search.Float32s, len(vectors)),
		magnitudes: make([]float32, len(vectors)),
		docs:       make([]*models.Document, len(docs)),
	}
	for i, v := range vectors {
		if len(v) != dimensions {
			return nil, fmt.Errorf("entry %d: %w", i, &DimensionMismatchError{Expected: dimensions, Actual: len(v)})
		}
		if docs[i] == nil {
			return nil, fmt.Errorf("%w: entry %d has no document", ErrInvalidArgument, i)
		}
		vec := make(search.Float32s, dimensions)
		copy(vec, v)
		idx.vectors[i] = vec
		if metric == MetricCosine {
			idx.magnitudes[i] = vec.Magnitude()
		}
		idx.docs[i] = docs[i]
	}
	return idx, nil
}

// Len returns the number of entries.
func (x *FlatIndex) Len() int { return len(x.vectors) }

// Dimensions returns the vector dimension.
func (x *FlatIndex) Dimensions() int { return x.dimensions }

// Metric returns the comparison metric fixed at construction.
func (x *FlatIndex) Metric() Metric { return x.metric }

// Entry returns a copy of the vector at position i and its document.
func (x *FlatIndex) Entry(i int) ([]float32, *models.Document) {
	vec := make([]float32, x.dimensions)
	copy(vec, x.vectors[i])
	return vec, x.docs[i]
}

// Search returns the min(k, N) entries closest to query, best first. Equal scores are
// ordered by ascending position, so repeated searches return identical results.
func (x *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if len(query) != x.dimensions {
		return nil, &DimensionMismatchError{Expected: x.dimensions, Actual: len(query)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x.vectors) == 0 {
		return []Hit{}, nil
	}
	if k > len(x.vectors) {
		k = len(x.vectors)
	}

	var qMag float32
	if x.metric == MetricCosine {
		qMag = search.Float32s(query).Magnitude()
	}

	h := &worstFirst{metric: x.metric, items: make([]candidate, 0, k)}
	for i, vec := range x.vectors {
		c := candidate{pos: i, score: x.metric.score(vec, x.magnitudes[i], query, qMag)}
		if h.Len() < k {
			heap.Push(h, c)
			continue
		}
		if h.ranksAhead(c, h.items[0]) {
			h.items[0] = c
			heap.Fix(h, 0)
		}
	}

	hits := make([]Hit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		c := heap.Pop(h).(candidate)
		hits[i] = Hit{Position: c.pos, Document: x.docs[c.pos], Score: float64(c.score)}
	}
	return hits, nil
}

type candidate struct {
	pos   int
	score float32
}

// worstFirst is a bounded heap whose root is the weakest kept candidate.
type worstFirst struct {
	metric Metric
	items  []candidate
}

func (h *worstFirst) ranksAhead(a, b candidate) bool {
	if a.score != b.score {
		return h.metric.better(a.score, b.score)
	}
	return a.pos < b.pos
}

func (h *worstFirst) Len() int           { return len(h.items) }
func (h *worstFirst) Less(i, j int) bool { return h.ranksAhead(h.items[j], h.items[i]) }
func (h *worstFirst) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *worstFirst) Push(v any)         { h.items = append(h.items, v.(candidate)) }
func (h *worstFirst) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}
