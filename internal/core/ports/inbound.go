package ports

import (
	"context"
	"io"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

// DocumentIngestor is the inbound contract for lecture upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, classification domain.Classification, body io.Reader) (*domain.CourseDocument, error)
}

// QuestionAnswerer is the inbound contract for grounded question answering.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question string, threshold float64, opts domain.RetrieveOptions) (*domain.Answer, error)
}

// DocumentReader is the inbound read model for registry state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.CourseDocument, error)
	List(ctx context.Context) ([]domain.CourseDocument, error)
}

// DocumentProcessor is the inbound contract for asynchronous processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// MetadataProvider lists the classification values present in the corpus.
type MetadataProvider interface {
	Metadata(ctx context.Context) (domain.MetadataSummary, error)
}
