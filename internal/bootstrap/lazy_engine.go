package bootstrap

import (
	"context"
	"log/slog"
	"sync"

	"github.com/milo-edu/milo-rag/internal/core/domain"
	"github.com/milo-edu/milo-rag/internal/retrieval"
)

// LazyEngine wraps the retrieval engine for deployments that start
// before any document was ever indexed. While the artifacts are absent
// every query answers empty; the first successful Reload, typically
// triggered by an index-rebuilt event, brings the real engine up.
type LazyEngine struct {
	paths    retrieval.ArtifactPaths
	embedder retrieval.QueryEmbedder
	logger   *slog.Logger

	mu     sync.Mutex
	engine *retrieval.Engine
}

func NewLazyEngine(paths retrieval.ArtifactPaths, embedder retrieval.QueryEmbedder, logger *slog.Logger) *LazyEngine {
	if logger == nil {
		logger = slog.Default()
	}
	le := &LazyEngine{paths: paths, embedder: embedder, logger: logger}
	if err := le.init(); err != nil {
		logger.Warn("retrieval_index_unavailable", "error", err)
	}
	return le
}

func (le *LazyEngine) init() error {
	le.mu.Lock()
	defer le.mu.Unlock()
	if le.engine != nil {
		return nil
	}
	engine, err := retrieval.NewEngine(le.paths, le.embedder, le.logger)
	if err != nil {
		return err
	}
	le.engine = engine
	return nil
}

func (le *LazyEngine) get() *retrieval.Engine {
	le.mu.Lock()
	defer le.mu.Unlock()
	return le.engine
}

func (le *LazyEngine) Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) ([]domain.Passage, error) {
	if engine := le.get(); engine != nil {
		return engine.Retrieve(ctx, query, opts)
	}
	return nil, nil
}

func (le *LazyEngine) Metadata() domain.MetadataSummary {
	if engine := le.get(); engine != nil {
		return engine.Metadata()
	}
	return domain.MetadataSummary{Unique: map[string][]string{}}
}

func (le *LazyEngine) Reload(ctx context.Context) error {
	if engine := le.get(); engine != nil {
		return engine.Reload(ctx)
	}
	return le.init()
}

func (le *LazyEngine) ChunkCount() int {
	if engine := le.get(); engine != nil {
		return engine.ChunkCount()
	}
	return 0
}
