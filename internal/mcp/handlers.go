package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/rag-server/internal/index"
	"github.com/bull/rag-server/internal/pipeline"
)

// makeAskHandler creates the ask tool handler. The answer is produced even
// when retrieval support is weak; the low_confidence flag tells the caller.
func makeAskHandler(pipe *pipeline.Pipeline) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		var opts *pipeline.AskOptions
		if input.MaxResults > 0 || input.MinScore > 0 {
			opts = &pipeline.AskOptions{
				K:        input.MaxResults,
				MinScore: input.MinScore,
			}
		}

		answer, err := pipe.Ask(ctx, input.Query, opts)
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("%s: %w", pipeline.Classify(err), err)
		}

		return nil, AskOutput{
			Answer:              answer.Answer,
			Sources:             answer.Sources,
			RetrievalConfidence: answer.RetrievalConfidence,
			LowConfidence:       answer.LowConfidence,
		}, nil
	}
}

// makeIngestHandler creates the ingest_document tool handler.
func makeIngestHandler(pipe *pipeline.Pipeline) func(
	context.Context, *mcp.CallToolRequest, IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestInput) (
		*mcp.CallToolResult, IngestOutput, error,
	) {
		contentType := input.ContentType
		if contentType == "" {
			contentType = "text/plain"
		}

		result, err := pipe.Ingest(ctx, pipeline.IngestRequest{
			DocumentID:  input.DocumentID,
			SourceURI:   input.SourceURI,
			ContentType: contentType,
			Data:        []byte(input.Content),
		})
		if err != nil {
			return nil, IngestOutput{}, fmt.Errorf("%s: %w", pipeline.Classify(err), err)
		}

		return nil, IngestOutput{
			DocumentID: result.DocumentID,
			ChunkCount: result.ChunkCount,
			Status:     string(result.Status),
		}, nil
	}
}

// makeRemoveHandler creates the remove_document tool handler. A missing
// document is reported in the output, not as a tool error.
func makeRemoveHandler(pipe *pipeline.Pipeline) func(
	context.Context, *mcp.CallToolRequest, RemoveInput,
) (*mcp.CallToolResult, RemoveOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RemoveInput) (
		*mcp.CallToolResult, RemoveOutput, error,
	) {
		result, err := pipe.RemoveDocument(ctx, input.DocumentID)
		if err != nil {
			if errors.Is(err, index.ErrDocumentNotFound) {
				return nil, RemoveOutput{Found: false}, nil
			}
			return nil, RemoveOutput{}, fmt.Errorf("%s: %w", pipeline.Classify(err), err)
		}

		return nil, RemoveOutput{
			RemovedChunkCount: result.RemovedChunkCount,
			Found:             true,
		}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(pipe *pipeline.Pipeline) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		status, err := pipe.Status(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("%s: %w", pipeline.Classify(err), err)
		}

		return nil, StatusOutput{
			Documents:      status.Documents,
			Vectors:        status.Vectors,
			Dimension:      status.Dimension,
			EmbeddingModel: status.EmbeddingModel,
			ChunkStrategy:  status.ChunkStrategy,
		}, nil
	}
}
