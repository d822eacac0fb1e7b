package retrieval

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func unitVec(x float64) []float32 {
	y := math.Sqrt(1 - x*x)
	return []float32{float32(x), float32(y)}
}

func TestDenseSearchOrdersByInnerProduct(t *testing.T) {
	ix, err := NewDenseIndex(2, [][]float32{unitVec(0.1), unitVec(0.9), unitVec(0.5)})
	if err != nil {
		t.Fatalf("NewDenseIndex() error = %v", err)
	}

	hits := ix.Search([]float32{1, 0}, 3)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	wantOrder := []int{1, 2, 0}
	for i, want := range wantOrder {
		if hits[i].Position != want {
			t.Fatalf("hit %d position = %d, want %d (%v)", i, hits[i].Position, want, hits)
		}
	}
	if math.Abs(hits[0].Score-0.9) > 1e-3 {
		t.Fatalf("expected cosine ~0.9 for best hit, got %f", hits[0].Score)
	}
}

func TestDenseSearchClampsK(t *testing.T) {
	ix, err := NewDenseIndex(2, [][]float32{unitVec(0.3), unitVec(0.7)})
	if err != nil {
		t.Fatalf("NewDenseIndex() error = %v", err)
	}
	if hits := ix.Search([]float32{1, 0}, 50); len(hits) != 2 {
		t.Fatalf("k must clamp to index size, got %d hits", len(hits))
	}
}

func TestDenseSearchZeroVectorQuery(t *testing.T) {
	ix, err := NewDenseIndex(2, [][]float32{unitVec(0.3), unitVec(0.7)})
	if err != nil {
		t.Fatalf("NewDenseIndex() error = %v", err)
	}
	query := []float32{0, 0}
	NormalizeL2(query)
	hits := ix.Search(query, 2)
	if len(hits) != 2 {
		t.Fatalf("zero query must still return hits, got %d", len(hits))
	}
	for _, hit := range hits {
		if hit.Score != 0 {
			t.Fatalf("zero query must score zero, got %v", hit)
		}
	}
}

func TestDenseIndexRejectsDimensionMismatch(t *testing.T) {
	if _, err := NewDenseIndex(3, [][]float32{{1, 0}}); err == nil {
		t.Fatalf("expected error for mismatched vector dimension")
	}
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("expected (0.6, 0.8), got %v", v)
	}

	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector must stay zero, got %v", zero)
	}
}

func TestDenseIndexFileRoundTrip(t *testing.T) {
	ix, err := NewDenseIndex(3, [][]float32{{1, 0, 0}, {0, 1, 0}, {0.5, 0.5, 0}})
	if err != nil {
		t.Fatalf("NewDenseIndex() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "vector_index.bin")
	if err := SaveDenseIndex(path, ix); err != nil {
		t.Fatalf("SaveDenseIndex() error = %v", err)
	}

	loaded, err := LoadDenseIndex(path)
	if err != nil {
		t.Fatalf("LoadDenseIndex() error = %v", err)
	}
	if loaded.Len() != ix.Len() || loaded.Dim() != ix.Dim() {
		t.Fatalf("round trip changed shape: %dx%d vs %dx%d", loaded.Len(), loaded.Dim(), ix.Len(), ix.Dim())
	}
	for i, vec := range loaded.Vectors() {
		for j, x := range vec {
			if x != ix.Vectors()[i][j] {
				t.Fatalf("vector %d differs after round trip", i)
			}
		}
	}
}

func TestLoadDenseIndexMissingFile(t *testing.T) {
	_, err := LoadDenseIndex(filepath.Join(t.TempDir(), "absent.bin"))
	if err == nil {
		t.Fatalf("expected error for missing dense index")
	}
}

func TestLoadDenseIndexRejectsOversizedHeaderCount(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("MFIP")
	for _, v := range []uint32{1, 2} { // version, dimension
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("write header: %v", err)
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(1)<<40); err != nil {
		t.Fatalf("write count: %v", err)
	}
	buf.Write(make([]byte, 16)) // payload for only two dim-2 rows

	path := filepath.Join(t.TempDir(), "vector_index.bin")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := LoadDenseIndex(path); err == nil {
		t.Fatalf("expected error for header count exceeding the file payload")
	}
}

func TestLoadDenseIndexTruncatedFile(t *testing.T) {
	ix, err := NewDenseIndex(2, [][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("NewDenseIndex() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "vector_index.bin")
	if err := SaveDenseIndex(path, ix); err != nil {
		t.Fatalf("SaveDenseIndex() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)-4], 0o644); err != nil {
		t.Fatalf("truncate file: %v", err)
	}

	if _, err := LoadDenseIndex(path); err == nil {
		t.Fatalf("expected error for truncated dense index")
	}
}
