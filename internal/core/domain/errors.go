package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	// ErrMissingArtifact marks a load attempt that found one of the
	// persisted retrieval files absent. Fatal for that load; the wrapped
	// message names the missing path.
	ErrMissingArtifact = errors.New("missing retrieval artifact")

	// ErrNoValidEmbeddings aborts an index build that filtered every
	// stored embedding out. Any non-empty remainder builds normally.
	ErrNoValidEmbeddings = errors.New("no valid embeddings")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
