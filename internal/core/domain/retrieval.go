package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ChunkMetadata identifies one retrievable passage and carries its course
// classification. Page stays a string because legacy index files mix JSON
// numbers with the "?" placeholder.
type ChunkMetadata struct {
	DocID      string `json:"doc_id,omitempty"`
	DocLabel   string `json:"doc_label,omitempty"`
	Page       string `json:"page,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	ChunkID    string `json:"chunk_id,omitempty"`

	Matiere     string `json:"matiere,omitempty"`
	SousMatiere string `json:"sous_matiere,omitempty"`
	Enseignant  string `json:"enseignant,omitempty"`
	Semestre    string `json:"semestre,omitempty"`
	Promo       string `json:"promo,omitempty"`
}

type chunkMetadataWire struct {
	DocID      string          `json:"doc_id,omitempty"`
	DocLabel   string          `json:"doc_label,omitempty"`
	Page       json.RawMessage `json:"page,omitempty"`
	ChunkIndex json.RawMessage `json:"chunk_index,omitempty"`
	ChunkID    string          `json:"chunk_id,omitempty"`

	Matiere     string `json:"matiere,omitempty"`
	SousMatiere string `json:"sous_matiere,omitempty"`
	Enseignant  string `json:"enseignant,omitempty"`
	Semestre    string `json:"semestre,omitempty"`
	Promo       string `json:"promo,omitempty"`
}

// UnmarshalJSON tolerates legacy files where page is a number and
// chunk_index is either a number or a numeric string. Unparsable values
// degrade to their defaults instead of failing the load.
func (m *ChunkMetadata) UnmarshalJSON(data []byte) error {
	var wire chunkMetadataWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*m = ChunkMetadata{
		DocID:       wire.DocID,
		DocLabel:    wire.DocLabel,
		ChunkID:     wire.ChunkID,
		Matiere:     wire.Matiere,
		SousMatiere: wire.SousMatiere,
		Enseignant:  wire.Enseignant,
		Semestre:    wire.Semestre,
		Promo:       wire.Promo,
	}
	m.Page = decodeFlexibleString(wire.Page)
	m.ChunkIndex = decodeFlexibleInt(wire.ChunkIndex)
	return nil
}

// MarshalJSON writes numeric pages back as JSON numbers so round-tripped
// files stay byte-compatible with the original producer.
func (m ChunkMetadata) MarshalJSON() ([]byte, error) {
	wire := chunkMetadataWire{
		DocID:       m.DocID,
		DocLabel:    m.DocLabel,
		ChunkID:     m.ChunkID,
		Matiere:     m.Matiere,
		SousMatiere: m.SousMatiere,
		Enseignant:  m.Enseignant,
		Semestre:    m.Semestre,
		Promo:       m.Promo,
	}
	if m.Page != "" {
		if _, err := strconv.Atoi(m.Page); err == nil {
			wire.Page = json.RawMessage(m.Page)
		} else {
			encoded, err := json.Marshal(m.Page)
			if err != nil {
				return nil, err
			}
			wire.Page = encoded
		}
	}
	wire.ChunkIndex = json.RawMessage(strconv.Itoa(m.ChunkIndex))
	return json.Marshal(wire)
}

func decodeFlexibleString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.Itoa(int(n))
	}
	return ""
}

func decodeFlexibleInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return parsed
		}
	}
	return 0
}

// PassageMetadata is chunk metadata enriched with the per-query scores.
// VectorScore and LexicalScore stay raw so callers can display confidence
// on the original scales; CombinedScore is the fused [0,1] value.
type PassageMetadata struct {
	ChunkMetadata
	VectorScore   float64 `json:"vector_score"`
	LexicalScore  float64 `json:"lexical_score"`
	CombinedScore float64 `json:"combined_score"`
}

// Passage is one ranked retrieval result.
type Passage struct {
	Text     string          `json:"text"`
	Score    float64         `json:"score"`
	Metadata PassageMetadata `json:"metadata"`
}

// SearchFilter restricts candidates to chunks whose classification matches
// every set field exactly. Empty fields impose no constraint.
type SearchFilter struct {
	Matiere     string `json:"matiere,omitempty"`
	SousMatiere string `json:"sous_matiere,omitempty"`
	Enseignant  string `json:"enseignant,omitempty"`
	Semestre    string `json:"semestre,omitempty"`
	Promo       string `json:"promo,omitempty"`
}

func (f SearchFilter) IsZero() bool {
	return f == SearchFilter{}
}

func (f SearchFilter) Matches(meta ChunkMetadata) bool {
	if f.Matiere != "" && f.Matiere != meta.Matiere {
		return false
	}
	if f.SousMatiere != "" && f.SousMatiere != meta.SousMatiere {
		return false
	}
	if f.Enseignant != "" && f.Enseignant != meta.Enseignant {
		return false
	}
	if f.Semestre != "" && f.Semestre != meta.Semestre {
		return false
	}
	if f.Promo != "" && f.Promo != meta.Promo {
		return false
	}
	return true
}

// RetrieveOptions tunes one retrieval call. VectorK and BM25K are wider
// than TopN on purpose: fusion needs a broader candidate pool than the
// final answer count.
type RetrieveOptions struct {
	TopN    int
	VectorK int
	BM25K   int
	Alpha   float64
	Filter  SearchFilter
}

const (
	DefaultTopN    = 3
	DefaultVectorK = 20
	DefaultBM25K   = 40
	DefaultAlpha   = 0.65
)

func (o RetrieveOptions) Normalized() RetrieveOptions {
	out := o
	if out.TopN <= 0 {
		out.TopN = DefaultTopN
	}
	if out.VectorK <= 0 {
		out.VectorK = DefaultVectorK
	}
	if out.BM25K <= 0 {
		out.BM25K = DefaultBM25K
	}
	if out.Alpha < 0 || out.Alpha > 1 {
		out.Alpha = DefaultAlpha
	}
	return out
}

// Answer is the user-facing result of one question. Grounded is false when
// the best raw vector score stayed below the caller threshold; that is a
// normal outcome, not an error.
type Answer struct {
	Text            string    `json:"text"`
	Sources         []Passage `json:"sources"`
	BestVectorScore float64   `json:"best_vector_score"`
	Grounded        bool      `json:"grounded"`
}

// ClassificationRecord is one distinct combination of the filterable
// dimensions, as surfaced by the metadata endpoint.
type ClassificationRecord struct {
	Matiere    string `json:"matiere,omitempty"`
	Enseignant string `json:"enseignant,omitempty"`
	Semestre   string `json:"semestre,omitempty"`
	Promo      string `json:"promo,omitempty"`
}

type MetadataSummary struct {
	Unique  map[string][]string    `json:"unique"`
	Records []ClassificationRecord `json:"records"`
}
