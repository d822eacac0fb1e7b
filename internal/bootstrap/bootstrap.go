package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/milo-edu/milo-rag/internal/config"
	"github.com/milo-edu/milo-rag/internal/core/domain"
	"github.com/milo-edu/milo-rag/internal/core/ports"
	"github.com/milo-edu/milo-rag/internal/core/usecase"
	"github.com/milo-edu/milo-rag/internal/infrastructure/chunking"
	"github.com/milo-edu/milo-rag/internal/infrastructure/extractor/pdf"
	"github.com/milo-edu/milo-rag/internal/infrastructure/llm/ollama"
	"github.com/milo-edu/milo-rag/internal/infrastructure/queue/nats"
	"github.com/milo-edu/milo-rag/internal/infrastructure/repository/postgres"
	"github.com/milo-edu/milo-rag/internal/infrastructure/resilience"
	"github.com/milo-edu/milo-rag/internal/infrastructure/storage/localfs"
	"github.com/milo-edu/milo-rag/internal/observability/metrics"
	"github.com/milo-edu/milo-rag/internal/retrieval"
)

type Options struct {
	// WorkerMetrics, when set, records per-rebuild index statistics.
	// The API process leaves it nil.
	WorkerMetrics *metrics.WorkerMetrics
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	Retriever *LazyEngine

	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor
	AskUC      ports.QuestionAnswerer
	MetadataUC ports.MetadataProvider

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSUploadSubject, cfg.NATSRebuiltSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	paths := retrieval.DefaultArtifactPaths(cfg.IndexDir)
	embedModel := queryEmbeddingModel(cfg, paths, logger)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, embedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	engine := NewLazyEngine(paths, embedder, logger)

	var indexer ports.RetrievalIndexer = retrieval.NewIndexer(paths, embedModel, logger)
	if opts.WorkerMetrics != nil {
		indexer = &instrumentedIndexer{inner: indexer, metrics: opts.WorkerMetrics}
	}

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := pdf.NewExtractor(storage)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, extractor, chunker, embedder, indexer, queue)
	askUC := usecase.NewAskQuestionUseCase(engine, generator)
	metadataUC := usecase.NewCorpusMetadataUseCase(engine)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Repo:      repo,
		Retriever: engine,

		IngestUC:   ingestUC,
		ProcessUC:  processUC,
		AskUC:      askUC,
		MetadataUC: metadataUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// queryEmbeddingModel picks the model used for query vectors. An index
// already on disk wins over the configured default: query and chunk
// vectors must come from the same model to be comparable. An explicit
// OLLAMA_EMBED_MODEL overrides even the index.
func queryEmbeddingModel(cfg config.Config, paths retrieval.ArtifactPaths, logger *slog.Logger) string {
	// Return the env value itself: cfg.OllamaEmbedModel may have been
	// replaced by a CONFIG_FILE override, which must not outrank an
	// explicit environment variable here.
	if env := os.Getenv("OLLAMA_EMBED_MODEL"); env != "" {
		return env
	}
	meta, err := retrieval.LoadMeta(paths.Meta)
	if err != nil {
		logger.Warn("index_meta_unreadable", "path", paths.Meta, "error", err)
		return cfg.OllamaEmbedModel
	}
	if meta.EmbeddingModel != "" && meta.EmbeddingModel != cfg.OllamaEmbedModel {
		logger.Info("embedding_model_from_index", "model", meta.EmbeddingModel)
		return meta.EmbeddingModel
	}
	return cfg.OllamaEmbedModel
}

type instrumentedIndexer struct {
	inner   ports.RetrievalIndexer
	metrics *metrics.WorkerMetrics
}

func (ii *instrumentedIndexer) AppendChunks(
	ctx context.Context,
	texts []string,
	vectors [][]float32,
	metas []domain.ChunkMetadata,
) (ports.IndexReport, error) {
	report, err := ii.inner.AppendChunks(ctx, texts, vectors, metas)
	if err == nil {
		ii.metrics.RecordIndexReport("worker", report.ChunkCount, report.BadEmbeddings, report.DroppedDim)
	}
	return report, err
}
