// Package main provides the ragctl CLI for managing the RAG index.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/rag-server/internal/decoder"
	"github.com/bull/rag-server/internal/pipeline"
	"github.com/bull/rag-server/internal/source"
)

var (
	flagK        int
	flagMinScore float64
	flagMaxChars int

	flagOwner string
	flagRepo  string
	flagPath  string
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Manage the RAG document index",
	Long: `CLI tool for ingesting documents, asking questions, and managing the index.

Environment variables:
  OPENAI_API_KEY OpenAI API key for embeddings and generation (required)
  INDEX_PATH     Path to the embedded index database (default: data/index.db)
  VECTOR_BACKEND embedded or qdrant (default: embedded)
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  GITHUB_TOKEN   GitHub token for higher sync rate limits (optional)`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the index",
	Long:  "Decodes, chunks, embeds, and indexes the given files. Content type is detected from the file extension.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed documents",
	Long:  "Answers one question, or starts an interactive shell when no question is given.",
	RunE:  runAsk,
}

var removeCmd = &cobra.Command{
	Use:   "remove <document-id>",
	Short: "Remove a document and its chunks from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	RunE:  runStatus,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bulk-ingest Markdown documents from a GitHub repository",
	RunE:  runSync,
}

func init() {
	askCmd.Flags().IntVar(&flagK, "k", 0, "number of chunks to retrieve")
	askCmd.Flags().Float64Var(&flagMinScore, "min-score", 0, "minimum similarity score")
	askCmd.Flags().IntVar(&flagMaxChars, "max-context", 0, "context budget in characters")

	syncCmd.Flags().StringVar(&flagOwner, "owner", "", "GitHub repository owner")
	syncCmd.Flags().StringVar(&flagRepo, "repo", "", "GitHub repository name")
	syncCmd.Flags().StringVar(&flagPath, "path", "", "subtree path within the repository")
	syncCmd.MarkFlagRequired("owner")
	syncCmd.MarkFlagRequired("repo")

	rootCmd.AddCommand(ingestCmd, askCmd, removeCmd, statusCmd, syncCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pipe, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, name := range args {
		data, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		result, err := pipe.Ingest(ctx, pipeline.IngestRequest{
			SourceURI:   "file://" + name,
			ContentType: decoder.DetectContentType(name),
			Data:        data,
			Metadata:    map[string]string{"filename": filepath.Base(name)},
		})
		if err != nil {
			return fmt.Errorf("ingest %s (%s): %w", name, pipeline.Classify(err), err)
		}
		fmt.Printf("%s: %s, %d chunks (document %s)\n", name, result.Status, result.ChunkCount, result.DocumentID)
		for _, failed := range result.Failed {
			fmt.Printf("  failed chunk %s: %s\n", failed.ChunkID, failed.Reason)
		}
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pipe, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var opts *pipeline.AskOptions
	if flagK > 0 || flagMinScore > 0 || flagMaxChars > 0 {
		opts = &pipeline.AskOptions{K: flagK, MinScore: flagMinScore, MaxContextChars: flagMaxChars}
	}

	if len(args) > 0 {
		return askOne(ctx, pipe, strings.Join(args, " "), opts)
	}

	// Interactive shell: one question per line until EOF.
	fmt.Println("Ask a question (ctrl-d to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if err := askOne(ctx, pipe, query, opts); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func askOne(ctx context.Context, pipe *pipeline.Pipeline, query string, opts *pipeline.AskOptions) error {
	answer, err := pipe.Ask(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.Classify(err), err)
	}

	fmt.Println()
	fmt.Println(answer.Answer)
	fmt.Println()
	if answer.LowConfidence {
		fmt.Printf("(low confidence: mean retrieval score %.2f)\n", answer.RetrievalConfidence)
	}
	if len(answer.Sources) > 0 {
		fmt.Println("Sources:")
		for _, src := range answer.Sources {
			fmt.Printf("  - document %s, chunk %d (score %.2f)\n", src.DocumentID, src.SequenceIndex, src.Score)
		}
	}
	fmt.Println()
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pipe, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := pipe.RemoveDocument(ctx, args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.Classify(err), err)
	}
	fmt.Printf("Removed document %s (%d chunks)\n", args[0], result.RemovedChunkCount)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pipe, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := pipe.Status(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.Classify(err), err)
	}
	fmt.Printf("Documents: %d\n", status.Documents)
	fmt.Printf("Vectors:   %d\n", status.Vectors)
	fmt.Printf("Dimension: %d\n", status.Dimension)
	fmt.Printf("Embedding: %s\n", status.EmbeddingModel)
	fmt.Printf("Chunking:  %s\n", status.ChunkStrategy)
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	pipe, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	src, err := source.NewGitHubSource(flagOwner, flagRepo, flagPath)
	if err != nil {
		return fmt.Errorf("create GitHub source: %w", err)
	}

	fmt.Printf("Syncing %s/%s %s...\n", flagOwner, flagRepo, flagPath)
	result, err := source.NewSyncer(src, pipe, slog.Default()).Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Commit: %s\n", result.CommitSHA)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}
