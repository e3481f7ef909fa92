package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/rag-server/internal/pipeline"
)

// Server wraps the MCP server with its pipeline dependency.
type Server struct {
	server *mcp.Server
	pipe   *pipeline.Pipeline
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(pipe *pipeline.Pipeline) *Server {
	impl := &mcp.Implementation{
		Name:    "rag-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the indexed documents. Returns the generated answer with source citations, retrieval confidence, and a low-confidence flag.",
	}, makeAskHandler(pipe))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Index a document for question answering. Re-using a document ID replaces that document's chunks.",
	}, makeIngestHandler(pipe))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_document",
		Description: "Remove a document and all its indexed chunks.",
	}, makeRemoveHandler(pipe))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the current index status: document and vector counts, embedding dimension and model, and chunking strategy.",
	}, makeStatusHandler(pipe))

	return &Server{server: server, pipe: pipe}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
