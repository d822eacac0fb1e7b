package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/milo-edu/milo-rag/internal/core/domain"
	"github.com/milo-edu/milo-rag/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	indexer   ports.RetrievalIndexer
	queue     ports.MessageQueue
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	indexer ports.RetrievalIndexer,
	queue ports.MessageQueue,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		indexer:   indexer,
		queue:     queue,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	chunkCount, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SetChunkCount(ctx, documentID, chunkCount); err != nil {
		return fmt.Errorf("save chunk count: %w", err)
	}
	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	if err := uc.queue.PublishIndexRebuilt(ctx); err != nil {
		return fmt.Errorf("publish index rebuilt event: %w", err)
	}

	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (int, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}

	pages, err := uc.extractPages(ctx, doc)
	if err != nil {
		return 0, err
	}

	texts, metas := uc.chunkPages(doc, pages)
	if len(texts) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	vectors, err := uc.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	if _, err := uc.indexer.AppendChunks(ctx, texts, vectors, metas); err != nil {
		return 0, fmt.Errorf("rebuild retrieval index: %w", err)
	}

	return len(texts), nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.CourseDocument, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractPages(ctx context.Context, doc *domain.CourseDocument) ([]domain.PageText, error) {
	pages, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if len(pages) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("no extractable pages"))
	}
	return pages, nil
}

// chunkPages splits every page and stamps each chunk with its source
// document, page number and running chunk index, so the retrieval side
// can cite "document, page" without re-deriving anything.
func (uc *ProcessDocumentUseCase) chunkPages(doc *domain.CourseDocument, pages []domain.PageText) ([]string, []domain.ChunkMetadata) {
	classification := doc.Classification.Normalized()

	var texts []string
	var metas []domain.ChunkMetadata
	chunkIndex := 0
	for _, page := range pages {
		pageNum := strconv.Itoa(page.Number)
		for _, chunk := range uc.chunker.Split(page.Text) {
			texts = append(texts, chunk)
			metas = append(metas, domain.ChunkMetadata{
				DocID:       doc.ID,
				DocLabel:    doc.Filename,
				Page:        pageNum,
				ChunkIndex:  chunkIndex,
				ChunkID:     fmt.Sprintf("%s:%s:%d", doc.ID, pageNum, chunkIndex),
				Matiere:     classification.Matiere,
				SousMatiere: classification.SousMatiere,
				Enseignant:  classification.Enseignant,
				Semestre:    classification.Semestre,
				Promo:       classification.Promo,
			})
			chunkIndex++
		}
	}
	return texts, metas
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
		)
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
