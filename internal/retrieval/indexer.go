package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/milo-edu/milo-rag/internal/core/domain"
	"github.com/milo-edu/milo-rag/internal/core/ports"
)

// Indexer appends chunks to the persisted corpus and rebuilds the
// retrieval artifacts. One writer at a time; readers load the finished
// artifacts through Engine.Reload, so writes never race reads.
type Indexer struct {
	paths          ArtifactPaths
	embeddingModel string
	logger         *slog.Logger

	mu sync.Mutex
}

func NewIndexer(paths ArtifactPaths, embeddingModel string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{paths: paths, embeddingModel: embeddingModel, logger: logger}
}

// AppendChunks adds the given chunks to the documents file and rebuilds
// all four artifacts. A missing documents file means a first build over
// an empty corpus, not an error.
func (ix *Indexer) AppendChunks(
	_ context.Context,
	texts []string,
	vectors [][]float32,
	metas []domain.ChunkMetadata,
) (ports.IndexReport, error) {
	if len(texts) != len(vectors) || len(texts) != len(metas) {
		return ports.IndexReport{}, domain.WrapError(domain.ErrInvalidInput, "append chunks",
			fmt.Errorf("texts/vectors/metas length mismatch: %d/%d/%d", len(texts), len(vectors), len(metas)))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	docs, err := LoadDocuments(ix.paths.Documents)
	if err != nil {
		if !errors.Is(err, domain.ErrMissingArtifact) {
			return ports.IndexReport{}, err
		}
		docs = nil
	}

	for i := range texts {
		embedding, err := EncodeEmbedding(vectors[i])
		if err != nil {
			return ports.IndexReport{}, fmt.Errorf("encode embedding %d: %w", i, err)
		}
		docs = append(docs, DocumentRecord{
			Text:      texts[i],
			Embedding: embedding,
			Metadata:  metas[i],
		})
	}

	result, err := BuildArtifacts(docs, ix.paths, ix.embeddingModel, ix.logger)
	if err != nil {
		return ports.IndexReport{}, err
	}
	return ports.IndexReport{
		ChunkCount:    result.ChunkCount,
		BadEmbeddings: result.Report.Bad,
		DroppedDim:    result.Report.Dropped,
	}, nil
}
