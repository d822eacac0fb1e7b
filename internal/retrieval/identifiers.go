package retrieval

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

// EnsureIdentifiers returns metadata guaranteed to carry well-formed
// citation identifiers. Missing values are synthesized deterministically
// from the chunk text so repeated calls with the same input agree:
//
//	doc_id      -> "<matiere|doc>-<sha1(text)[:8]>"
//	doc_label   -> doc_id
//	page        -> "?"
//	chunk_index -> 0 (already coerced by decoding)
//	chunk_id    -> "doc_id:page:chunk_index"
//
// Total: never fails, for any input.
func EnsureIdentifiers(meta domain.ChunkMetadata, text string) domain.ChunkMetadata {
	out := meta

	if out.DocID == "" {
		prefix := out.Matiere
		if prefix == "" {
			prefix = "doc"
		}
		sum := sha1.Sum([]byte(text))
		out.DocID = fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(sum[:])[:8])
	}
	if out.DocLabel == "" {
		out.DocLabel = out.DocID
	}
	if out.Page == "" {
		out.Page = "?"
	}
	if out.ChunkIndex < 0 {
		out.ChunkIndex = 0
	}
	if out.ChunkID == "" {
		out.ChunkID = fmt.Sprintf("%s:%s:%d", out.DocID, out.Page, out.ChunkIndex)
	}
	return out
}
