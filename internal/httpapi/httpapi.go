// Package httpapi exposes the answer pipeline as a small JSON API.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bull/rag-server/internal/pipeline"
)

// Handler serves the /v1 API over a pipeline.
type Handler struct {
	pipe   *pipeline.Pipeline
	logger *slog.Logger
}

// New creates the API handler.
func New(pipe *pipeline.Pipeline, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pipe: pipe, logger: logger}
}

// Register mounts the API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/ingest", h.handleIngest)
	mux.HandleFunc("POST /v1/ask", h.handleAsk)
	mux.HandleFunc("DELETE /v1/documents/{id}", h.handleRemove)
	mux.HandleFunc("GET /v1/status", h.handleStatus)
}

type errorResponse struct {
	Error string        `json:"error"`
	Kind  pipeline.Kind `json:"kind"`
}

// statusFor maps a failure kind to an HTTP status code.
func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindEmptyDocument,
		pipeline.KindDecodingError,
		pipeline.KindDimensionMismatch,
		pipeline.KindDegenerateVector:
		return http.StatusBadRequest
	case pipeline.KindNotFound:
		return http.StatusNotFound
	case pipeline.KindGenerationTimeout:
		return http.StatusGatewayTimeout
	case pipeline.KindEmbeddingUnavailable,
		pipeline.KindGenerationUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := pipeline.Classify(err)
	h.logger.Warn("request failed", "kind", kind, "error", err)
	writeJSON(w, statusFor(kind), errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ingestRequest is the /v1/ingest body. Content carries text directly;
// ContentBase64 carries binary formats such as PDF.
type ingestRequest struct {
	DocumentID    string            `json:"document_id,omitempty"`
	SourceURI     string            `json:"source_uri,omitempty"`
	ContentType   string            `json:"content_type,omitempty"`
	Content       string            `json:"content,omitempty"`
	ContentBase64 string            `json:"content_base64,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: pipeline.KindDecodingError})
		return
	}

	data := []byte(req.Content)
	if req.ContentBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid content_base64", Kind: pipeline.KindDecodingError})
			return
		}
		data = decoded
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}

	result, err := h.pipe.Ingest(r.Context(), pipeline.IngestRequest{
		DocumentID:  req.DocumentID,
		SourceURI:   req.SourceURI,
		ContentType: contentType,
		Data:        data,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type askRequest struct {
	Query           string  `json:"query"`
	MaxResults      int     `json:"max_results,omitempty"`
	MaxContextChars int     `json:"max_context_chars,omitempty"`
	MinScore        float64 `json:"min_score,omitempty"`
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: pipeline.KindDecodingError})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required", Kind: pipeline.KindDecodingError})
		return
	}

	var opts *pipeline.AskOptions
	if req.MaxResults > 0 || req.MaxContextChars > 0 || req.MinScore > 0 {
		opts = &pipeline.AskOptions{
			K:               req.MaxResults,
			MaxContextChars: req.MaxContextChars,
			MinScore:        req.MinScore,
		}
	}

	answer, err := h.pipe.Ask(r.Context(), req.Query, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	result, err := h.pipe.RemoveDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.pipe.Status(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 32<<20))
	if err != nil {
		return errors.New("request body too large or unreadable")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
