package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/milo-edu/milo-rag/internal/adapters/http"
	"github.com/milo-edu/milo-rag/internal/bootstrap"
	"github.com/milo-edu/milo-rag/internal/config"
	"github.com/milo-edu/milo-rag/internal/observability/logging"
	"github.com/milo-edu/milo-rag/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("api", "error").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	m := metrics.NewHTTPServerMetrics("api")
	m.SetIndexChunks(app.Retriever.ChunkCount())

	router := httpadapter.NewRouter(
		app.IngestUC,
		app.AskUC,
		app.MetadataUC,
		app.Repo,
		m,
		logger,
		httpadapter.Options{
			Defaults: httpadapter.RetrievalDefaults{
				TopN:            cfg.RAGTopN,
				VectorK:         cfg.RAGVectorK,
				BM25K:           cfg.RAGBM25K,
				Alpha:           cfg.RAGAlpha,
				AnswerThreshold: cfg.AnswerThreshold,
			},
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			MaxInFlight:    cfg.APIMaxInFlight,
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", router.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		err := app.Queue.SubscribeIndexRebuilt(ctx, func(handlerCtx context.Context) error {
			reloadCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
			defer cancel()

			reloadErr := app.Retriever.Reload(reloadCtx)
			m.RecordIndexReload("api", reloadErr)
			if reloadErr != nil {
				logger.Error("index_reload_failed", "error", reloadErr)
				return reloadErr
			}
			m.SetIndexChunks(app.Retriever.ChunkCount())
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("index_rebuilt_subscribe_failed", "error", err)
		}
	}()

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
