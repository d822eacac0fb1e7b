package ollama

import (
	"fmt"
	"strings"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

const answerSystemPrompt = `Tu es un assistant pédagogique pour des étudiants.
Réponds uniquement à partir des extraits de cours fournis.
Cite tes sources avec l'identifiant entre crochets, par exemple [maths-a1b2c3d4:12:0].
Si les extraits ne permettent pas de répondre, dis-le clairement sans inventer.`

func buildAnswerPrompt(question string, passages []domain.Passage) string {
	var contextBuilder strings.Builder
	for _, passage := range passages {
		meta := passage.Metadata
		contextBuilder.WriteString(fmt.Sprintf(
			"[%s] document=%s page=%s score=%.3f\n%s\n\n",
			meta.ChunkID,
			meta.DocLabel,
			meta.Page,
			passage.Score,
			passage.Text,
		))
	}

	return fmt.Sprintf(`Question :
%s

Extraits de cours :
%s`, question, contextBuilder.String())
}
