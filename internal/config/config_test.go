package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"SQRL_SOCKET_PATH", "SQRL_DB_PATH", "SQRL_EMBEDDING_MODEL", "SQRL_EMBEDDING_DIMS",
		"SQRL_EMBEDDING_MAX_RETRIES", "SQRL_EMBEDDING_RETRY_DELAY", "SQRL_EMBEDDING_RETRY_BACKOFF",
		"SQRL_STRONG_MODEL", "SQRL_MAX_MEMORIES_PER_EPISODE", "SQRL_CONFIDENCE_THRESHOLD",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default embedding model, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected default embedding dims 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Embedding.MaxRetries)
	}
	if cfg.Embedding.RetryDelay != time.Second {
		t.Errorf("expected default retry delay 1s, got %s", cfg.Embedding.RetryDelay)
	}
	if cfg.Embedding.RetryBackoff != 2.0 {
		t.Errorf("expected default retry backoff 2.0, got %f", cfg.Embedding.RetryBackoff)
	}
	if cfg.Commit.MaxMemoriesPerEpisode != 5 {
		t.Errorf("expected default max memories per episode 5, got %d", cfg.Commit.MaxMemoriesPerEpisode)
	}
	if cfg.Commit.ConfidenceThreshold != 0.8 {
		t.Errorf("expected default confidence threshold 0.8, got %f", cfg.Commit.ConfidenceThreshold)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SQRL_SOCKET_PATH", "/tmp/custom.sock")
	t.Setenv("SQRL_EMBEDDING_DIMS", "768")
	t.Setenv("SQRL_EMBEDDING_RETRY_DELAY", "0.5")
	t.Setenv("SQRL_STRONG_MODEL", "claude-3-7-sonnet")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.SocketPath != "/tmp/custom.sock" {
		t.Errorf("expected overridden socket path, got %q", cfg.Server.SocketPath)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected overridden dims 768, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.RetryDelay != 500*time.Millisecond {
		t.Errorf("expected overridden retry delay 500ms, got %s", cfg.Embedding.RetryDelay)
	}
	if cfg.Extractor.StrongModel != "claude-3-7-sonnet" {
		t.Errorf("expected overridden strong model, got %q", cfg.Extractor.StrongModel)
	}
}

func TestLoadConfigMalformedIntFallsBackToDefault(t *testing.T) {
	t.Setenv("SQRL_EMBEDDING_DIMS", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected fallback to default on malformed int, got %d", cfg.Embedding.Dimensions)
	}
}
