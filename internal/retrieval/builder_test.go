package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestBuildArtifactsSurvivesMalformedEmbeddings(t *testing.T) {
	docs := make([]DocumentRecord, 0, 10)
	for i := 0; i < 8; i++ {
		var embedding json.RawMessage
		switch i % 3 {
		case 0:
			embedding = json.RawMessage(fmt.Sprintf("[%d, %d, %d]", i, i+1, i+2))
		case 1:
			embedding = base64Embedding(float32(i), float32(i+1), float32(i+2))
		default:
			embedding = json.RawMessage(fmt.Sprintf("\"[%d, %d, %d]\"", i, i+1, i+2))
		}
		docs = append(docs, DocumentRecord{
			Text:      fmt.Sprintf("chunk numéro %d", i),
			Embedding: embedding,
			Metadata:  domain.ChunkMetadata{DocID: fmt.Sprintf("d%d", i)},
		})
	}
	docs = append(docs,
		DocumentRecord{Text: "embedding cassé", Embedding: json.RawMessage(`"pas un embedding"`)},
		DocumentRecord{Text: "embedding absent"},
	)

	paths := DefaultArtifactPaths(t.TempDir())
	result, err := BuildArtifacts(docs, paths, "test-model", discardLogger())
	if err != nil {
		t.Fatalf("BuildArtifacts() error = %v", err)
	}
	if result.ChunkCount != 8 {
		t.Fatalf("expected 8 indexed chunks, got %d", result.ChunkCount)
	}
	if result.Report.Bad != 2 {
		t.Fatalf("expected 2 bad embeddings, got %d", result.Report.Bad)
	}

	saved, err := LoadDocuments(paths.Documents)
	if err != nil {
		t.Fatalf("LoadDocuments() error = %v", err)
	}
	if len(saved) != 8 {
		t.Fatalf("documents file must hold only indexed chunks, got %d", len(saved))
	}
	for i, record := range saved {
		if len(record.Embedding) == 0 || record.Embedding[0] != '[' {
			t.Fatalf("record %d not re-encoded canonically: %s", i, record.Embedding)
		}
	}

	dense, err := LoadDenseIndex(paths.DenseIndex)
	if err != nil {
		t.Fatalf("LoadDenseIndex() error = %v", err)
	}
	if dense.Len() != 8 || dense.Dim() != 3 {
		t.Fatalf("dense index shape %dx%d, want 8x3", dense.Len(), dense.Dim())
	}

	corpus, err := LoadLexicalCorpus(paths.LexicalIndex)
	if err != nil {
		t.Fatalf("LoadLexicalCorpus() error = %v", err)
	}
	if len(corpus) != 8 {
		t.Fatalf("lexical corpus must stay in lockstep, got %d", len(corpus))
	}

	meta, err := LoadMeta(paths.Meta)
	if err != nil {
		t.Fatalf("LoadMeta() error = %v", err)
	}
	if meta.EmbeddingModel != "test-model" || meta.ChunkCount != 8 {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestBuildArtifactsAbortsWithoutValidEmbeddings(t *testing.T) {
	docs := []DocumentRecord{
		{Text: "a", Embedding: json.RawMessage(`"n'importe quoi"`)},
		{Text: "b"},
	}
	_, err := BuildArtifacts(docs, DefaultArtifactPaths(t.TempDir()), "m", discardLogger())
	if !errors.Is(err, domain.ErrNoValidEmbeddings) {
		t.Fatalf("expected ErrNoValidEmbeddings, got %v", err)
	}
}

func TestBuildArtifactsDropsMinorityDimension(t *testing.T) {
	docs := []DocumentRecord{
		{Text: "a", Embedding: json.RawMessage(`[1, 0, 0]`)},
		{Text: "b", Embedding: json.RawMessage(`[0, 1, 0]`)},
		{Text: "c", Embedding: json.RawMessage(`[1, 0]`)},
	}
	result, err := BuildArtifacts(docs, DefaultArtifactPaths(t.TempDir()), "m", discardLogger())
	if err != nil {
		t.Fatalf("BuildArtifacts() error = %v", err)
	}
	if result.ChunkCount != 2 || result.Report.Dropped != 1 {
		t.Fatalf("expected 2 kept / 1 dropped, got %d/%d", result.ChunkCount, result.Report.Dropped)
	}
}

func TestIndexerAppendChunksFirstBuild(t *testing.T) {
	paths := DefaultArtifactPaths(t.TempDir())
	ix := NewIndexer(paths, "test-model", discardLogger())

	report, err := ix.AppendChunks(context.Background(),
		[]string{"premier chunk", "second chunk"},
		[][]float32{{1, 0}, {0, 1}},
		[]domain.ChunkMetadata{{DocID: "d0"}, {DocID: "d1"}},
	)
	if err != nil {
		t.Fatalf("AppendChunks() error = %v", err)
	}
	if report.ChunkCount != 2 {
		t.Fatalf("expected 2 chunks after first build, got %d", report.ChunkCount)
	}

	report, err = ix.AppendChunks(context.Background(),
		[]string{"troisième chunk"},
		[][]float32{{1, 1}},
		[]domain.ChunkMetadata{{DocID: "d2"}},
	)
	if err != nil {
		t.Fatalf("AppendChunks() second call error = %v", err)
	}
	if report.ChunkCount != 3 {
		t.Fatalf("expected 3 chunks after append, got %d", report.ChunkCount)
	}
}

func TestIndexerAppendChunksRejectsLengthMismatch(t *testing.T) {
	ix := NewIndexer(DefaultArtifactPaths(t.TempDir()), "m", discardLogger())
	_, err := ix.AppendChunks(context.Background(),
		[]string{"un", "deux"},
		[][]float32{{1, 0}},
		[]domain.ChunkMetadata{{}, {}},
	)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
