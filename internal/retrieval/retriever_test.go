package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]float32(nil), s.vec...), nil
}

// fusionDocs sets up three chunks whose raw dense scores against the
// query vector (1,0) are 0.9, 0.5 and 0.1, and whose texts make the
// lexical ranking disagree with the dense one: the second chunk wins
// on BM25 while the first wins on cosine.
func fusionDocs() []DocumentRecord {
	encode := func(vec []float32) []byte {
		raw, _ := EncodeEmbedding(vec)
		return raw
	}
	return []DocumentRecord{
		{
			Text:      "le produit de convolution",
			Embedding: encode(unitVec(0.9)),
			Metadata:  domain.ChunkMetadata{DocID: "d0", Matiere: "maths", Enseignant: "dupont"},
		},
		{
			Text:      "théorème de convolution et théorème de plancherel",
			Embedding: encode(unitVec(0.5)),
			Metadata:  domain.ChunkMetadata{DocID: "d1", Matiere: "maths", Enseignant: "martin"},
		},
		{
			Text:      "comptabilité analytique",
			Embedding: encode(unitVec(0.1)),
			Metadata:  domain.ChunkMetadata{DocID: "d2", Matiere: "compta", Enseignant: "durand"},
		},
	}
}

func newTestEngine(t *testing.T, queryVec []float32) *Engine {
	t.Helper()
	paths := DefaultArtifactPaths(t.TempDir())
	if _, err := BuildArtifacts(fusionDocs(), paths, "test-model", discardLogger()); err != nil {
		t.Fatalf("BuildArtifacts() error = %v", err)
	}
	engine, err := NewEngine(paths, stubEmbedder{vec: queryVec}, discardLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func docIDs(passages []domain.Passage) []string {
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Metadata.DocID
	}
	return out
}

func TestRetrieveFusesVectorAndLexicalRankings(t *testing.T) {
	engine := newTestEngine(t, []float32{1, 0})

	passages, err := engine.Retrieve(context.Background(), "théorème de convolution", domain.RetrieveOptions{
		TopN:  2,
		Alpha: 0.5,
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}

	// Normalized vector scores are 1.0/0.5/0.0 and normalized lexical
	// scores 0.0/1.0/-, so with equal weights the middle dense hit wins.
	got := docIDs(passages)
	if got[0] != "d1" || got[1] != "d0" {
		t.Fatalf("fused order = %v, want [d1 d0]", got)
	}
	if math.Abs(passages[0].Score-0.75) > 1e-3 {
		t.Fatalf("top combined score = %f, want ~0.75", passages[0].Score)
	}
	if math.Abs(passages[1].Score-0.5) > 1e-3 {
		t.Fatalf("second combined score = %f, want ~0.5", passages[1].Score)
	}

	top := passages[0].Metadata
	if math.Abs(top.VectorScore-0.5) > 1e-3 {
		t.Fatalf("raw vector score = %f, want ~0.5", top.VectorScore)
	}
	if top.LexicalScore <= 0 {
		t.Fatalf("raw lexical score must stay on the BM25 scale, got %f", top.LexicalScore)
	}
	if top.ChunkID != "d1:?:0" {
		t.Fatalf("chunk id must be synthesized on the way out, got %q", top.ChunkID)
	}
}

func TestRetrieveAlphaExtremes(t *testing.T) {
	engine := newTestEngine(t, []float32{1, 0})

	vectorOnly, err := engine.Retrieve(context.Background(), "théorème de convolution", domain.RetrieveOptions{
		TopN:  3,
		Alpha: 1.0,
	})
	if err != nil {
		t.Fatalf("Retrieve(alpha=1) error = %v", err)
	}
	if got := docIDs(vectorOnly); got[0] != "d0" || got[1] != "d1" || got[2] != "d2" {
		t.Fatalf("alpha=1 must follow the dense ranking, got %v", got)
	}

	lexicalOnly, err := engine.Retrieve(context.Background(), "théorème de convolution", domain.RetrieveOptions{
		TopN:  3,
		Alpha: 0.0,
	})
	if err != nil {
		t.Fatalf("Retrieve(alpha=0) error = %v", err)
	}
	if got := docIDs(lexicalOnly); got[0] != "d1" {
		t.Fatalf("alpha=0 must follow the lexical ranking, got %v", got)
	}
}

func TestRetrieveFilterIsConjunctive(t *testing.T) {
	engine := newTestEngine(t, []float32{1, 0})

	passages, err := engine.Retrieve(context.Background(), "théorème de convolution", domain.RetrieveOptions{
		TopN:   3,
		Alpha:  0.5,
		Filter: domain.SearchFilter{Matiere: "maths", Enseignant: "dupont"},
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got := docIDs(passages); len(got) != 1 || got[0] != "d0" {
		t.Fatalf("filter must require every set field, got %v", got)
	}

	passages, err = engine.Retrieve(context.Background(), "théorème de convolution", domain.RetrieveOptions{
		TopN:   3,
		Alpha:  0.5,
		Filter: domain.SearchFilter{Matiere: "droit"},
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(passages) != 0 {
		t.Fatalf("unmatched filter must return nothing, got %v", docIDs(passages))
	}
}

func TestRetrieveWithoutLexicalOverlap(t *testing.T) {
	engine := newTestEngine(t, []float32{1, 0})

	passages, err := engine.Retrieve(context.Background(), "optique quantique", domain.RetrieveOptions{
		TopN:  3,
		Alpha: 0.65,
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got := docIDs(passages); len(got) != 3 || got[0] != "d0" {
		t.Fatalf("vector ranking must carry the result alone, got %v", got)
	}
	if math.Abs(passages[0].Score-0.65) > 1e-3 {
		t.Fatalf("top score must be alpha times the normalized vector score, got %f", passages[0].Score)
	}
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	paths := DefaultArtifactPaths(t.TempDir())
	if _, err := BuildArtifacts(fusionDocs(), paths, "m", discardLogger()); err != nil {
		t.Fatalf("BuildArtifacts() error = %v", err)
	}
	engine, err := NewEngine(paths, stubEmbedder{err: errors.New("connection refused")}, discardLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if _, err := engine.Retrieve(context.Background(), "question", domain.RetrieveOptions{}); !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestBackfillFromVectorFillsToTopN(t *testing.T) {
	snap := &snapshot{docs: fusionDocs()}
	vectorRaw := map[int]float64{0: 0.9, 1: 0.5, 2: 0.1}
	normVector := map[int]float64{0: 1.0, 1: 0.5, 2: 0.0}

	results := snap.backfillFromVector(nil, map[int]bool{}, vectorRaw, normVector, map[int]float64{}, 2)
	if got := docIDs(results); len(got) != 2 || got[0] != "d0" || got[1] != "d1" {
		t.Fatalf("backfill must add best vector candidates first, got %v", got)
	}
	if results[0].Score != 1.0 || results[1].Score != 0.5 {
		t.Fatalf("backfilled passages score by normalized vector alone: %v", results)
	}
}

func TestEngineReloadSwapsSnapshot(t *testing.T) {
	paths := DefaultArtifactPaths(t.TempDir())
	docs := fusionDocs()
	if _, err := BuildArtifacts(docs[:1], paths, "m", discardLogger()); err != nil {
		t.Fatalf("BuildArtifacts() error = %v", err)
	}
	engine, err := NewEngine(paths, stubEmbedder{vec: []float32{1, 0}}, discardLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if engine.ChunkCount() != 1 {
		t.Fatalf("expected 1 chunk before reload, got %d", engine.ChunkCount())
	}

	if _, err := BuildArtifacts(docs, paths, "m", discardLogger()); err != nil {
		t.Fatalf("BuildArtifacts() rebuild error = %v", err)
	}
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if engine.ChunkCount() != 3 {
		t.Fatalf("expected 3 chunks after reload, got %d", engine.ChunkCount())
	}
}

func TestEngineToleratesDenseDocumentCountMismatch(t *testing.T) {
	paths := DefaultArtifactPaths(t.TempDir())
	if _, err := BuildArtifacts(fusionDocs(), paths, "m", discardLogger()); err != nil {
		t.Fatalf("BuildArtifacts() error = %v", err)
	}

	// Shrink the documents file to two records while the dense and
	// lexical artifacts still carry three positions.
	docs, err := LoadDocuments(paths.Documents)
	if err != nil {
		t.Fatalf("LoadDocuments() error = %v", err)
	}
	if err := SaveDocuments(paths.Documents, docs[:2]); err != nil {
		t.Fatalf("SaveDocuments() error = %v", err)
	}

	engine, err := NewEngine(paths, stubEmbedder{vec: []float32{1, 0}}, discardLogger())
	if err != nil {
		t.Fatalf("count mismatch must warn and proceed, got %v", err)
	}
	if engine.ChunkCount() != 2 {
		t.Fatalf("expected 2 loaded chunks, got %d", engine.ChunkCount())
	}

	// The query scores position 2 on both the dense and lexical side;
	// neither may surface it once the document store ends at position 1.
	passages, err := engine.Retrieve(context.Background(), "comptabilité analytique et convolution", domain.RetrieveOptions{
		TopN:  3,
		Alpha: 0.5,
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected only reachable positions, got %v", docIDs(passages))
	}
	for _, p := range passages {
		if p.Metadata.DocID == "d2" {
			t.Fatalf("position past the document store surfaced: %v", docIDs(passages))
		}
	}
}

func TestNewEngineMissingArtifacts(t *testing.T) {
	paths := DefaultArtifactPaths(t.TempDir())
	_, err := NewEngine(paths, stubEmbedder{vec: []float32{1, 0}}, discardLogger())
	if !errors.Is(err, domain.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
}

func TestEngineMetadataSummary(t *testing.T) {
	engine := newTestEngine(t, []float32{1, 0})

	summary := engine.Metadata()
	matieres := summary.Unique["matiere"]
	if len(matieres) != 2 || matieres[0] != "compta" || matieres[1] != "maths" {
		t.Fatalf("unique matieres = %v, want sorted [compta maths]", matieres)
	}
	if len(summary.Unique["enseignant"]) != 3 {
		t.Fatalf("unique enseignants = %v", summary.Unique["enseignant"])
	}
	if len(summary.Records) != 3 {
		t.Fatalf("expected 3 distinct classification records, got %d", len(summary.Records))
	}
}
