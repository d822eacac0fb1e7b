package retrieval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

// ArtifactPaths locates the four persisted retrieval files.
type ArtifactPaths struct {
	Documents    string
	DenseIndex   string
	LexicalIndex string
	Meta         string
}

// DefaultArtifactPaths keeps the documents and meta filenames of the
// original pipeline so existing corpora load unchanged.
func DefaultArtifactPaths(dir string) ArtifactPaths {
	return ArtifactPaths{
		Documents:    filepath.Join(dir, "vector_db.json"),
		DenseIndex:   filepath.Join(dir, "vector_index.bin"),
		LexicalIndex: filepath.Join(dir, "bm25_corpus.json"),
		Meta:         filepath.Join(dir, "index_meta.json"),
	}
}

// DocumentRecord is one chunk as persisted in the documents file. The
// embedding stays raw until index build, where it is decoded through the
// encoding variants.
type DocumentRecord struct {
	Text      string               `json:"text"`
	Embedding json.RawMessage      `json:"embedding,omitempty"`
	Metadata  domain.ChunkMetadata `json:"metadata"`
}

// IndexMeta governs which embedding model serves new queries, keeping
// query vectors compatible with the indexed ones.
type IndexMeta struct {
	EmbeddingModel     string `json:"embedding_model"`
	ChunkCount         int    `json:"chunk_count"`
	DatabaseIntegrated bool   `json:"database_integrated,omitempty"`
}

// lexicalState is the serialized ranking-function input: the tokenized
// corpus in position order.
type lexicalState struct {
	Corpus [][]string `json:"corpus"`
}

func LoadDocuments(path string) ([]DocumentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrMissingArtifact, "load documents", fmt.Errorf("%s", path))
		}
		return nil, fmt.Errorf("load documents: %w", err)
	}
	var docs []DocumentRecord
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse documents %s: %w", path, err)
	}
	return docs, nil
}

func SaveDocuments(path string, docs []DocumentRecord) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	return writeFileAtomic(path, data)
}

// LoadMeta returns the zero meta when the file is absent; the meta file
// is advisory, unlike the three index artifacts.
func LoadMeta(path string) (IndexMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return IndexMeta{}, nil
		}
		return IndexMeta{}, fmt.Errorf("load meta: %w", err)
	}
	var meta IndexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return IndexMeta{}, fmt.Errorf("parse meta %s: %w", path, err)
	}
	return meta, nil
}

func SaveMeta(path string, meta IndexMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	return writeFileAtomic(path, data)
}

func LoadLexicalCorpus(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrMissingArtifact, "load lexical index", fmt.Errorf("%s", path))
		}
		return nil, fmt.Errorf("load lexical index: %w", err)
	}
	var state lexicalState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse lexical index %s: %w", path, err)
	}
	return state.Corpus, nil
}

func SaveLexicalCorpus(path string, corpus [][]string) error {
	data, err := json.Marshal(lexicalState{Corpus: corpus})
	if err != nil {
		return fmt.Errorf("marshal lexical index: %w", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes via a sibling temp file and rename so a loader
// never observes a half-written artifact.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
