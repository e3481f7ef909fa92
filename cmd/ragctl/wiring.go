package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/bull/rag-server/internal/chunker"
	"github.com/bull/rag-server/internal/embedding"
	"github.com/bull/rag-server/internal/generation"
	"github.com/bull/rag-server/internal/index"
	"github.com/bull/rag-server/internal/pipeline"
)

// buildPipeline wires the pipeline from environment configuration, mirroring
// the server's setup so CLI runs and the server share one index.
func buildPipeline(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	logger := slog.Default()

	embedder, err := embedding.NewOpenAI(
		embedding.WithModel(os.Getenv("EMBEDDING_MODEL"), getEnvInt("EMBEDDING_DIMENSION", 0)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedder: %w", err)
	}
	generator := generation.NewOpenAI(embedder.Client(), os.Getenv("GENERATION_MODEL"))

	store, err := index.OpenStore(getEnv("INDEX_PATH", "data/index.db"), embedder.Dimension())
	if err != nil {
		return nil, nil, fmt.Errorf("open document store: %w", err)
	}
	cleanup := func() { store.Close() }

	var idx index.VectorIndex
	switch backend := getEnv("VECTOR_BACKEND", "embedded"); backend {
	case "embedded":
		emb, err := index.NewEmbedded(ctx, store, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("load embedded index: %w", err)
		}
		idx = emb
	case "qdrant":
		qd, err := index.NewQdrant(ctx,
			getEnv("QDRANT_HOST", "localhost"),
			getEnvInt("QDRANT_PORT", 6334),
			getEnv("QDRANT_COLLECTION", "rag_chunks"),
			embedder.Dimension(),
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to qdrant: %w", err)
		}
		idx = qd
		cleanup = func() {
			qd.Close()
			store.Close()
		}
	default:
		cleanup()
		return nil, nil, fmt.Errorf("unknown VECTOR_BACKEND %q", backend)
	}

	strategy, err := buildStrategy(embedder)
	if err != nil {
		cleanup()
		return nil, nil, err
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
		return nil, nil, err
	}
	return pipe, cleanup, nil
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
