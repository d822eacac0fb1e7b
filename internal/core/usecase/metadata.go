package usecase

import (
	"context"

	"github.com/milo-edu/milo-rag/internal/core/domain"
	"github.com/milo-edu/milo-rag/internal/core/ports"
)

// CorpusMetadataUseCase surfaces the distinct classification values of
// the loaded corpus for the frontend filter pickers.
type CorpusMetadataUseCase struct {
	retriever ports.PassageRetriever
}

func NewCorpusMetadataUseCase(retriever ports.PassageRetriever) *CorpusMetadataUseCase {
	return &CorpusMetadataUseCase{retriever: retriever}
}

func (uc *CorpusMetadataUseCase) Metadata(_ context.Context) (domain.MetadataSummary, error) {
	return uc.retriever.Metadata(), nil
}
