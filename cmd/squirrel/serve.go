package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamino/squirrel/internal/config"
	"github.com/kamino/squirrel/internal/embedder"
	"github.com/kamino/squirrel/internal/extractor"
	"github.com/kamino/squirrel/internal/ipc"
	"github.com/kamino/squirrel/internal/policy"
	"github.com/kamino/squirrel/internal/storage/sqlite"
)

// embeddingCacheSize bounds the in-memory LRU cache sitting in front of
// the embedding provider; it is not itself spec-mandated and has no
// corresponding env var, just a fixed operational default.
const embeddingCacheSize = 4096

// shutdownDrainTimeout bounds how long serve waits for in-flight
// connections to finish after a shutdown signal before forcing exit.
const shutdownDrainTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var socketOverride string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the squirrel JSON-RPC server over a Unix domain socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(socketOverride)
		},
	}
	cmd.Flags().StringVar(&socketOverride, "socket", "", "override SQRL_SOCKET_PATH")
	return cmd
}

func runServe(socketOverride string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	socketPath := cfg.Server.SocketPath
	if socketOverride != "" {
		socketPath = socketOverride
	}

	store, err := sqlite.NewMemoryStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("failed to open database at %q: %v", cfg.Storage.DBPath, err)
	}
	defer store.Close()

	emb := buildEmbedder(cfg)

	pol, err := policy.LoadPolicy(cfg.Policy.UserPath, cfg.Policy.ProjectPath)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}
	eval := policy.NewEvaluator(pol)

	var opts []ipc.ServerOption
	opts = append(opts, WithExtractorIfConfigured(cfg)...)
	opts = append(opts, ipc.WithConfidenceThreshold(cfg.Commit.ConfidenceThreshold))

	srv := ipc.NewServer(store, emb, eval, opts...)

	var transportOpts []ipc.TransportOption
	if cfg.RateLimit.RequestsPerSecond > 0 {
		transportOpts = append(transportOpts, ipc.WithConnRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}

	transport, err := ipc.NewTransport(socketPath, srv, transportOpts...)
	if err != nil {
		return fmt.Errorf("failed to bind socket %q: %w", socketPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal, draining connections")
		cancel()
	}()

	log.Printf("ready — serving JSON-RPC 2.0 on %s", socketPath)
	return transport.Serve(ctx, shutdownDrainTimeout)
}

func buildEmbedder(cfg *config.Config) embedder.Embedder {
	provider := &embedder.HTTPProvider{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
	}
	gateway := embedder.NewGateway(provider, embedder.Config{
		Model:        cfg.Embedding.Model,
		Dimension:    cfg.Embedding.Dimensions,
		MaxRetries:   cfg.Embedding.MaxRetries,
		RetryDelay:   cfg.Embedding.RetryDelay,
		RetryBackoff: cfg.Embedding.RetryBackoff,
	})

	cached, err := embedder.NewCachedEmbedder(gateway, embeddingCacheSize)
	if err != nil {
		log.Printf("embedding cache disabled: %v", err)
		return gateway
	}
	return cached
}

// WithExtractorIfConfigured wires the extractor only when a strong
// model identifier is set; ingest_chunk runs in episode-only mode
// otherwise (see internal/ipc's handleIngestChunk).
func WithExtractorIfConfigured(cfg *config.Config) []ipc.ServerOption {
	if cfg.Extractor.StrongModel == "" || cfg.Extractor.BaseURL == "" {
		log.Println("no extractor configured (SQRL_STRONG_MODEL/SQRL_EXTRACTOR_BASE_URL unset): running in episode-only mode")
		return nil
	}

	extr := extractor.NewHTTPExtractor(extractor.Config{
		BaseURL: cfg.Extractor.BaseURL,
		Model:   cfg.Extractor.StrongModel,
	})
	return []ipc.ServerOption{ipc.WithExtractor(extr)}
}
