// Package main provides the RAG server entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/rag-server/internal/chunker"
	"github.com/bull/rag-server/internal/embedding"
	"github.com/bull/rag-server/internal/generation"
	"github.com/bull/rag-server/internal/httpapi"
	"github.com/bull/rag-server/internal/index"
	mcpserver "github.com/bull/rag-server/internal/mcp"
	"github.com/bull/rag-server/internal/pipeline"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	pipe, health, cleanup, err := buildPipeline(ctx, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	server := mcpserver.NewServer(pipe)

	mux := http.NewServeMux()
	mux.HandleFunc("/", mcpserver.NewLandingHandler())
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(health))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))
	httpapi.New(pipe, logger).Register(mux)

	port := getEnv("PORT", "8080")
	serverMode := getEnv("SERVER_MODE", "true") == "true"

	if serverMode {
		addr := "0.0.0.0:" + port
		logger.Info("starting HTTP server", "addr", addr)
		httpServer := &http.Server{Addr: addr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			httpServer.Shutdown(shutdownCtx)
		}()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
		return
	}

	// Stdio mode: run MCP over stdin/stdout, health endpoint in background.
	go func() {
		addr := "0.0.0.0:" + port
		logger.Info("starting health server", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("health server error", "error", err)
		}
	}()

	logger.Info("starting MCP server (stdio mode)")
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildPipeline wires the pipeline from environment configuration. The
// returned health checker is the active index backend; cleanup closes it.
func buildPipeline(ctx context.Context, logger *slog.Logger) (*pipeline.Pipeline, mcpserver.HealthChecker, func(), error) {
	embedder, err := embedding.NewOpenAI(
		embedding.WithModel(os.Getenv("EMBEDDING_MODEL"), getEnvInt("EMBEDDING_DIMENSION", 0)),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create embedder: %w", err)
	}
	generator := generation.NewOpenAI(embedder.Client(), os.Getenv("GENERATION_MODEL"))

	store, err := index.OpenStore(getEnv("INDEX_PATH", "data/index.db"), embedder.Dimension())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open document store: %w", err)
	}
	cleanup := func() { store.Close() }

	var idx index.VectorIndex
	var health mcpserver.HealthChecker
	switch backend := getEnv("VECTOR_BACKEND", "embedded"); backend {
	case "embedded":
		emb, err := index.NewEmbedded(ctx, store, logger)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("load embedded index: %w", err)
		}
		idx, health = emb, store
	case "qdrant":
		qd, err := index.NewQdrant(ctx,
			getEnv("QDRANT_HOST", "localhost"),
			getEnvInt("QDRANT_PORT", 6334),
			getEnv("QDRANT_COLLECTION", "rag_chunks"),
			embedder.Dimension(),
		)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("connect to qdrant: %w", err)
		}
		idx, health = qd, qd
		cleanup = func() {
			qd.Close()
			store.Close()
		}
	default:
		cleanup()
		return nil, nil, nil, fmt.Errorf("unknown VECTOR_BACKEND %q", backend)
	}

	strategy, err := buildStrategy(embedder)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	pipe, err := pipeline.New(strategy, embedder, generator, idx, store, pipeline.Config{
		K:                      getEnvInt("ANSWER_K", 0),
		MaxContextChars:        getEnvInt("MAX_CONTEXT_CHARS", 0),
		MinScore:               getEnvFloat("MIN_SCORE", 0),
		LowConfidenceThreshold: getEnvFloat("LOW_CONFIDENCE_THRESHOLD", 0),
		GenerationTimeout:      getEnvDuration("GENERATION_TIMEOUT", 0),
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return pipe, health, cleanup, nil
}

func buildStrategy(embedder *embedding.OpenAI) (chunker.Strategy, error) {
	size := getEnvInt("CHUNK_SIZE", 1000)
	overlap := getEnvInt("CHUNK_OVERLAP", 200)

	switch name := getEnv("CHUNK_STRATEGY", "recursive"); name {
	case "recursive":
		return chunker.NewRecursive(size, overlap)
	case "token":
		return chunker.NewTokenBound(getEnvInt("CHUNK_TOKENS", 200), getEnvInt("CHUNK_TOKEN_OVERLAP", 40), nil)
	case "semantic":
		return chunker.NewSemantic(embedder,
			getEnvFloat("SEMANTIC_THRESHOLD", 0.75), size, getEnvInt("SEMANTIC_OVERLAP_SENTENCES", 1))
	default:
		return nil, fmt.Errorf("unknown CHUNK_STRATEGY %q", name)
	}
}

func logLevel() slog.Level {
	if getEnv("LOG_LEVEL", "info") == "debug" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
