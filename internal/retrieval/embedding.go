package retrieval

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Stored embeddings arrive in three encodings, depending on which tool
// wrote the documents file: a plain JSON number array, a base64 string
// holding a raw little-endian float32 buffer, or a string holding a
// JSON-encoded number array. Each encoding is a variant with its own
// decode; classification happens once, up front.

type encodedEmbedding interface {
	decode() ([]float32, error)
}

type floatSliceEmbedding []float64

func (e floatSliceEmbedding) decode() ([]float32, error) {
	out := make([]float32, len(e))
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite value at %d", i)
		}
		out[i] = float32(v)
	}
	return out, nil
}

type byteBufferEmbedding []byte

func (e byteBufferEmbedding) decode() ([]float32, error) {
	if len(e)%4 != 0 {
		return nil, fmt.Errorf("byte buffer length %d is not a multiple of 4", len(e))
	}
	out := make([]float32, len(e)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(e[i*4:])
		v := math.Float32frombits(bits)
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("non-finite value at %d", i)
		}
		out[i] = v
	}
	return out, nil
}

type jsonTextEmbedding string

func (e jsonTextEmbedding) decode() ([]float32, error) {
	var floats []float64
	if err := json.Unmarshal([]byte(e), &floats); err != nil {
		return nil, fmt.Errorf("embedded json: %w", err)
	}
	return floatSliceEmbedding(floats).decode()
}

var errEmptyEmbedding = errors.New("empty embedding")

// classifyEmbedding maps one raw JSON value onto its encoding variant.
func classifyEmbedding(raw json.RawMessage) (encodedEmbedding, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, errEmptyEmbedding
	}

	switch trimmed[0] {
	case '[':
		var floats []float64
		if err := json.Unmarshal(raw, &floats); err != nil {
			// A nested array decodes as JSON but not as []float64:
			// not a 1-dimensional vector, so reject it.
			return nil, fmt.Errorf("not a flat number array: %w", err)
		}
		return floatSliceEmbedding(floats), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid string value: %w", err)
		}
		if strings.HasPrefix(strings.TrimSpace(s), "[") {
			return jsonTextEmbedding(s), nil
		}
		buf, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("neither json list nor base64 buffer: %w", err)
		}
		return byteBufferEmbedding(buf), nil
	default:
		return nil, fmt.Errorf("unsupported embedding encoding %q", trimmed[0])
	}
}

// DecodeEmbedding normalizes one stored embedding to a flat float32
// vector, whatever its source encoding. Empty vectors are rejected.
func DecodeEmbedding(raw json.RawMessage) ([]float32, error) {
	encoded, err := classifyEmbedding(raw)
	if err != nil {
		return nil, err
	}
	vec, err := encoded.decode()
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errEmptyEmbedding
	}
	return vec, nil
}

// EncodeEmbedding writes a vector in the canonical documents-file form,
// a plain JSON number array.
func EncodeEmbedding(vec []float32) (json.RawMessage, error) {
	return json.Marshal(vec)
}

// RepairReport accounts for an index build over heterogeneous storage.
type RepairReport struct {
	Total     int
	Bad       int
	Dropped   int
	Dim       int
	Histogram map[int]int
}

// RepairDimensions keeps only the vectors matching the most frequent
// dimensionality. Nil entries (failed decodes) count as bad. Returns the
// kept vectors and their original positions; a corpus with some malformed
// embeddings still yields a usable, smaller index.
func RepairDimensions(vectors [][]float32) ([][]float32, []int, RepairReport) {
	report := RepairReport{
		Total:     len(vectors),
		Histogram: make(map[int]int),
	}

	for _, v := range vectors {
		if v == nil {
			report.Bad++
			continue
		}
		report.Histogram[len(v)]++
	}

	bestDim, bestCount := 0, 0
	for dim, count := range report.Histogram {
		if count > bestCount || (count == bestCount && dim < bestDim) {
			bestDim, bestCount = dim, count
		}
	}
	report.Dim = bestDim

	kept := make([][]float32, 0, bestCount)
	positions := make([]int, 0, bestCount)
	for pos, v := range vectors {
		if v == nil {
			continue
		}
		if len(v) != bestDim {
			report.Dropped++
			continue
		}
		kept = append(kept, v)
		positions = append(positions, pos)
	}
	return kept, positions, report
}
