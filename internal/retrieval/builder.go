package retrieval

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

// BuildResult summarizes one artifact rebuild.
type BuildResult struct {
	ChunkCount int
	Report     RepairReport
}

// BuildArtifacts rebuilds the four persisted files from a document set
// whose embeddings may use any of the supported encodings. Malformed
// embeddings and minority dimensionalities are dropped, not fatal; the
// matching document records are dropped with them so the documents file,
// the dense index and the lexical corpus keep one shared position
// ordering. The build aborts only when no valid embedding remains.
func BuildArtifacts(docs []DocumentRecord, paths ArtifactPaths, embeddingModel string, logger *slog.Logger) (BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	vectors := make([][]float32, len(docs))
	for i, doc := range docs {
		vec, err := DecodeEmbedding(doc.Embedding)
		if err != nil {
			if !errors.Is(err, errEmptyEmbedding) {
				logger.Warn("embedding_decode_failed", "position", i, "error", err)
			}
			continue
		}
		vectors[i] = vec
	}

	kept, positions, report := RepairDimensions(vectors)
	if len(kept) == 0 {
		return BuildResult{}, domain.WrapError(domain.ErrNoValidEmbeddings, "build index",
			fmt.Errorf("%d documents, %d undecodable", len(docs), report.Bad))
	}
	if report.Dropped > 0 {
		logger.Warn("dimension_mismatch_filtered",
			"kept_dim", report.Dim,
			"dropped", report.Dropped,
			"histogram", fmt.Sprintf("%v", report.Histogram),
		)
	}

	keptDocs := make([]DocumentRecord, len(positions))
	corpus := make([][]string, len(positions))
	for i, pos := range positions {
		record := docs[pos]
		encoded, err := EncodeEmbedding(kept[i])
		if err != nil {
			return BuildResult{}, fmt.Errorf("encode embedding %d: %w", pos, err)
		}
		record.Embedding = encoded
		keptDocs[i] = record
		corpus[i] = Tokenize(record.Text)
	}

	dense, err := NewDenseIndex(report.Dim, kept)
	if err != nil {
		return BuildResult{}, fmt.Errorf("build dense index: %w", err)
	}

	if err := SaveDocuments(paths.Documents, keptDocs); err != nil {
		return BuildResult{}, err
	}
	if err := SaveDenseIndex(paths.DenseIndex, dense); err != nil {
		return BuildResult{}, err
	}
	if err := SaveLexicalCorpus(paths.LexicalIndex, corpus); err != nil {
		return BuildResult{}, err
	}
	meta := IndexMeta{
		EmbeddingModel:     embeddingModel,
		ChunkCount:         len(keptDocs),
		DatabaseIntegrated: true,
	}
	if err := SaveMeta(paths.Meta, meta); err != nil {
		return BuildResult{}, err
	}

	logger.Info("index_built",
		"chunks", len(keptDocs),
		"dim", report.Dim,
		"bad_embeddings", report.Bad,
		"dropped_dim", report.Dropped,
	)
	return BuildResult{ChunkCount: len(keptDocs), Report: report}, nil
}
