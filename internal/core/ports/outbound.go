package ports

import (
	"context"
	"io"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

// DocumentRepository persists and reads the course document registry.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.CourseDocument) error
	GetByID(ctx context.Context, id string) (*domain.CourseDocument, error)
	List(ctx context.Context) ([]domain.CourseDocument, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetChunkCount(ctx context.Context, id string, chunkCount int) error
}

// ObjectStorage stores uploaded source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue carries ingestion events to the worker and index-rebuilt
// events back to the serving processes.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
	PublishIndexRebuilt(ctx context.Context) error
	SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context) error) error
}

// TextExtractor extracts per-page text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.CourseDocument) ([]domain.PageText, error)
}

// Chunker splits page text into retrievable chunks.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunks and query text. Must be deterministic
// per (model, input) so index and query vectors stay comparable.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// PassageRetriever is the retrieval core seen from the use cases.
type PassageRetriever interface {
	Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) ([]domain.Passage, error)
	Metadata() domain.MetadataSummary
	Reload(ctx context.Context) error
}

// IndexReport summarizes one artifact rebuild.
type IndexReport struct {
	ChunkCount    int
	BadEmbeddings int
	DroppedDim    int
}

// RetrievalIndexer appends chunks to the persisted corpus and rebuilds the
// retrieval artifacts.
type RetrievalIndexer interface {
	AppendChunks(ctx context.Context, texts []string, vectors [][]float32, metas []domain.ChunkMetadata) (IndexReport, error)
}

// AnswerGenerator produces the final user-facing answer from retrieved
// passages. Opaque to the core.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, passages []domain.Passage, threshold float64) (string, error)
}
