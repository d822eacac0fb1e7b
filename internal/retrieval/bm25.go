package retrieval

import (
	"math"
	"sort"
)

const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// Hit is one scored corpus position.
type Hit struct {
	Position int
	Score    float64
}

// BM25Index ranks chunks with BM25 Okapi over the fixed corpus-position
// ordering shared with the document store and the dense index. Terms that
// occur in more than half the corpus get a floor of epsilon times the
// average IDF instead of a negative weight.
type BM25Index struct {
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// NewBM25Index builds the index from an already tokenized corpus. The
// slice index of each token list is the chunk's corpus position.
func NewBM25Index(corpus [][]string) *BM25Index {
	ix := &BM25Index{
		termFreqs: make([]map[string]int, len(corpus)),
		docLens:   make([]int, len(corpus)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for pos, tokens := range corpus {
		freqs := make(map[string]int, len(tokens))
		for _, token := range tokens {
			freqs[token]++
		}
		ix.termFreqs[pos] = freqs
		ix.docLens[pos] = len(tokens)
		totalLen += len(tokens)
		for term := range freqs {
			docFreq[term]++
		}
	}
	if len(corpus) > 0 {
		ix.avgDocLen = float64(totalLen) / float64(len(corpus))
	}

	n := float64(len(corpus))
	idfSum := 0.0
	var negative []string
	for term, freq := range docFreq {
		idf := math.Log(n-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		ix.idf[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}
	if len(ix.idf) > 0 {
		floor := bm25Epsilon * idfSum / float64(len(ix.idf))
		for _, term := range negative {
			ix.idf[term] = floor
		}
	}

	return ix
}

func (ix *BM25Index) Len() int {
	return len(ix.termFreqs)
}

// Scores returns the raw BM25 score of every corpus position for the
// given query tokens. An empty token list yields all zeros.
func (ix *BM25Index) Scores(tokens []string) []float64 {
	scores := make([]float64, len(ix.termFreqs))
	if len(tokens) == 0 || ix.avgDocLen == 0 {
		return scores
	}
	for pos, freqs := range ix.termFreqs {
		lenNorm := bm25K1 * (1 - bm25B + bm25B*float64(ix.docLens[pos])/ix.avgDocLen)
		for _, token := range tokens {
			tf := float64(freqs[token])
			if tf == 0 {
				continue
			}
			scores[pos] += ix.idf[token] * tf * (bm25K1 + 1) / (tf + lenNorm)
		}
	}
	return scores
}

// Search returns the top-k positions by raw score, discarding any result
// with score <= 0: a non-positive BM25 score means no meaningful lexical
// overlap and must not enter the fused ranking as a match.
func (ix *BM25Index) Search(tokens []string, k int) []Hit {
	scores := ix.Scores(tokens)
	if k > len(scores) {
		k = len(scores)
	}
	if k <= 0 {
		return nil
	}

	hits := make([]Hit, 0, len(scores))
	for pos, score := range scores {
		if score > 0 {
			hits = append(hits, Hit{Position: pos, Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
