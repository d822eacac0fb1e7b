package retrieval

import (
	"fmt"
	"math"
	"sort"
)

// DenseIndex is an exact flat inner-product index over L2-normalized
// float32 vectors. With both sides normalized the inner product is cosine
// similarity. Positions are corpus positions; the index never reorders.
//
// The index is immutable after construction and safe for concurrent
// searches.
type DenseIndex struct {
	dim     int
	vectors [][]float32
}

// NewDenseIndex stores the given vectors, normalizing each in place.
// Every vector must have the same dimensionality.
func NewDenseIndex(dim int, vectors [][]float32) (*DenseIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dense index: invalid dimension %d", dim)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("dense index: vector %d has dim %d, want %d", i, len(v), dim)
		}
		NormalizeL2(v)
	}
	return &DenseIndex{dim: dim, vectors: vectors}, nil
}

func (ix *DenseIndex) Len() int { return len(ix.vectors) }
func (ix *DenseIndex) Dim() int { return ix.dim }

// Vectors exposes the normalized backing slice for persistence. Callers
// must not mutate it.
func (ix *DenseIndex) Vectors() [][]float32 { return ix.vectors }

// Search returns up to k positions ordered by descending inner product
// with the query. The query is expected to be L2-normalized already; a
// zero vector is legal and simply scores zero everywhere. k is clamped to
// the index size.
func (ix *DenseIndex) Search(query []float32, k int) []Hit {
	if len(query) != ix.dim {
		return nil
	}
	if k > len(ix.vectors) {
		k = len(ix.vectors)
	}
	if k <= 0 {
		return nil
	}

	hits := make([]Hit, len(ix.vectors))
	for pos, v := range ix.vectors {
		var dot float32
		for i := range v {
			dot += v[i] * query[i]
		}
		hits[pos] = Hit{Position: pos, Score: float64(dot)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	return hits[:k]
}

// NormalizeL2 scales v to unit length in place. A zero-norm vector is
// left as the zero vector rather than producing NaNs.
func NormalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
