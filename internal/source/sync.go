package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/rag-server/internal/pipeline"
)

// SyncResult reports statistics for one bulk sync run.
type SyncResult struct {
	TotalDocs      int
	SuccessfulDocs int
	TotalChunks    int
	FailedDocs     []FailedDoc
	CommitSHA      string
	Duration       time.Duration
}

// FailedDoc names a corpus document that failed to ingest.
type FailedDoc struct {
	Path   string
	Reason string
}

// Syncer bulk-ingests a corpus through the pipeline. Per-document failures
// are collected, not fatal: the rest of the corpus still indexes.
type Syncer struct {
	source *GitHubSource
	pipe   *pipeline.Pipeline
	logger *slog.Logger
}

// NewSyncer wires a corpus source to the ingestion pipeline.
func NewSyncer(source *GitHubSource, pipe *pipeline.Pipeline, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{source: source, pipe: pipe, logger: logger}
}

// Sync fetches and ingests every document in the corpus.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}

	commitSHA, err := s.source.LatestCommitSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("get commit SHA: %w", err)
	}
	result.CommitSHA = commitSHA
	s.logger.Info("starting sync", "commit", commitSHA)

	paths, err := s.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}
	result.TotalDocs = len(paths)
	s.logger.Info("found documents", "count", len(paths))

	for _, docPath := range paths {
		chunks, err := s.ingestOne(ctx, docPath, commitSHA)
		if err != nil {
			s.logger.Warn("failed to ingest document", "path", docPath, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{
				Path:   docPath,
				Reason: err.Error(),
			})
			continue
		}
		result.SuccessfulDocs++
		result.TotalChunks += chunks
	}

	result.Duration = time.Since(start)
	s.logger.Info("sync complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

func (s *Syncer) ingestOne(ctx context.Context, docPath, commitSHA string) (int, error) {
	doc, err := s.source.Fetch(ctx, docPath)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	result, err := s.pipe.Ingest(ctx, pipeline.IngestRequest{
		SourceURI:   doc.URL,
		ContentType: "text/markdown",
		Data:        doc.Content,
		Metadata: map[string]string{
			"path":       doc.Path,
			"commit_sha": commitSHA,
			"blob_sha":   doc.SHA,
		},
	})
	if err != nil {
		return 0, err
	}
	return result.ChunkCount, nil
}
