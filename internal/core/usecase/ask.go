package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/milo-edu/milo-rag/internal/core/domain"
	"github.com/milo-edu/milo-rag/internal/core/ports"
)

const (
	// DefaultAnswerThreshold is the minimum raw cosine score the best
	// retrieved passage must reach before the generator is consulted.
	DefaultAnswerThreshold = 0.30

	// NotFoundAnswer is returned verbatim when retrieval found nothing
	// relevant enough. The frontend matches on this string.
	NotFoundAnswer = "Information non trouvée dans les sources disponibles."
)

type AskQuestionUseCase struct {
	retriever ports.PassageRetriever
	generator ports.AnswerGenerator
}

func NewAskQuestionUseCase(
	retriever ports.PassageRetriever,
	generator ports.AnswerGenerator,
) *AskQuestionUseCase {
	return &AskQuestionUseCase{
		retriever: retriever,
		generator: generator,
	}
}

// Ask answers a question from the indexed course material. When the best
// raw vector score stays under the threshold the question is considered
// out of corpus and no generation happens; the sources are still
// returned so the caller can show what was considered.
func (uc *AskQuestionUseCase) Ask(
	ctx context.Context,
	question string,
	threshold float64,
	opts domain.RetrieveOptions,
) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask question", errors.New("empty question"))
	}
	if threshold <= 0 {
		threshold = DefaultAnswerThreshold
	}

	passages, err := uc.retriever.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}

	best := bestVectorScore(passages)
	if len(passages) == 0 || best < threshold {
		return &domain.Answer{
			Text:            NotFoundAnswer,
			Sources:         passages,
			BestVectorScore: best,
			Grounded:        false,
		}, nil
	}

	answerText, err := uc.generator.GenerateAnswer(ctx, question, passages, threshold)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.Answer{
		Text:            answerText,
		Sources:         passages,
		BestVectorScore: best,
		Grounded:        true,
	}, nil
}

func bestVectorScore(passages []domain.Passage) float64 {
	best := 0.0
	for _, p := range passages {
		if p.Metadata.VectorScore > best {
			best = p.Metadata.VectorScore
		}
	}
	return best
}
