package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRetrievalDefaults(t *testing.T) {
	t.Setenv("RAG_TOP_N", "")
	t.Setenv("RAG_VECTOR_K", "")
	t.Setenv("RAG_BM25_K", "")
	t.Setenv("RAG_ALPHA", "")
	t.Setenv("ANSWER_THRESHOLD", "")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RAGTopN != 3 {
		t.Fatalf("expected default top n 3, got %d", cfg.RAGTopN)
	}
	if cfg.RAGVectorK != 20 || cfg.RAGBM25K != 40 {
		t.Fatalf("expected default candidate pools 20/40, got %d/%d", cfg.RAGVectorK, cfg.RAGBM25K)
	}
	if cfg.RAGAlpha != 0.65 {
		t.Fatalf("expected default alpha 0.65, got %f", cfg.RAGAlpha)
	}
	if cfg.AnswerThreshold != 0.30 {
		t.Fatalf("expected default answer threshold 0.30, got %f", cfg.AnswerThreshold)
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	t.Setenv("RAG_TOP_N", "5")
	t.Setenv("RAG_ALPHA", "0.5")
	t.Setenv("OLLAMA_CHAT_MODEL", "mistral:7b")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RAGTopN != 5 {
		t.Fatalf("expected top n 5, got %d", cfg.RAGTopN)
	}
	if cfg.RAGAlpha != 0.5 {
		t.Fatalf("expected alpha 0.5, got %f", cfg.RAGAlpha)
	}
	if cfg.OllamaChatModel != "mistral:7b" {
		t.Fatalf("expected chat model override, got %q", cfg.OllamaChatModel)
	}
}

func TestLoadIgnoresUnparsableNumbers(t *testing.T) {
	t.Setenv("RAG_TOP_N", "beaucoup")
	t.Setenv("RAG_ALPHA", "moitié")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RAGTopN != 3 || cfg.RAGAlpha != 0.65 {
		t.Fatalf("unparsable values must fall back to defaults, got %d/%f", cfg.RAGTopN, cfg.RAGAlpha)
	}
}

func TestLoadAppliesConfigFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "milo.yaml")
	content := "rag_alpha: 0.8\nindex_dir: /srv/milo/index\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RAG_ALPHA", "0.4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RAGAlpha != 0.8 {
		t.Fatalf("config file must override env, got %f", cfg.RAGAlpha)
	}
	if cfg.IndexDir != "/srv/milo/index" {
		t.Fatalf("expected index dir from file, got %q", cfg.IndexDir)
	}
	// Values absent from the file keep their env/default values.
	if cfg.RAGTopN != 3 {
		t.Fatalf("expected untouched default top n, got %d", cfg.RAGTopN)
	}
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
