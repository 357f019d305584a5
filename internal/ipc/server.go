package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/kamino/squirrel/internal/commit"
	"github.com/kamino/squirrel/internal/embedder"
	"github.com/kamino/squirrel/internal/extractor"
	"github.com/kamino/squirrel/internal/policy"
	"github.com/kamino/squirrel/internal/storage"
)

// Server dispatches JSON-RPC 2.0 requests to Squirrel's five methods.
// extractor may be nil: ingest_chunk then records episodes without
// extracting memories.
type Server struct {
	store     storage.Store
	embedder  embedder.Embedder
	extractor extractor.Extractor
	applier   *commit.Applier
	evaluator *policy.Evaluator
	logger    *log.Logger

	confidenceMin float64
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithExtractor sets the extractor used by ingest_chunk. Omit to run
// Squirrel in episode-only mode, with no memory extraction.
func WithExtractor(e extractor.Extractor) ServerOption {
	return func(s *Server) { s.extractor = e }
}

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithConfidenceThreshold overrides commit.DefaultConfidenceThreshold for
// the minimum MemoryOp.Confidence ingest_chunk will commit.
func WithConfidenceThreshold(t float64) ServerOption {
	return func(s *Server) { s.confidenceMin = t }
}

// NewServer wires a Server from its required capabilities plus options.
func NewServer(store storage.Store, emb embedder.Embedder, eval *policy.Evaluator, opts ...ServerOption) *Server {
	s := &Server{
		store:     store,
		embedder:  emb,
		evaluator: eval,
		applier:   commit.New(store, emb),
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, *JSONRPCError)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"embed_text":        s.handleEmbedText,
		"ingest_chunk":      s.handleIngestChunk,
		"compose_context":   s.handleComposeContext,
		"search_memories":   s.handleSearchMemories,
		"evaluate_memories": s.handleEvaluateMemories,
	}
}

// HandleRequest parses a single JSON-RPC request line, dispatches it, and
// returns the encoded response line. Returns nil for a well-formed
// notification (ID == nil), which expects no reply. A panic inside a
// handler is answered with an internal-error response.
func (s *Server) HandleRequest(ctx context.Context, line []byte) (resp []byte) {
	var req JSONRPCRequest
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("ipc: %s panicked: %v", req.Method, r)
			resp = s.respond(req, nil, &JSONRPCError{Code: ErrCodeInternalError, Message: fmt.Sprintf("internal error: %v", r)})
		}
	}()
	if err := json.Unmarshal(line, &req); err != nil {
		return encodeResponse(JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   &JSONRPCError{Code: ErrCodeParseError, Message: "invalid JSON: " + err.Error()},
			ID:      nil,
		})
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		return s.respond(req, nil, &JSONRPCError{Code: ErrCodeInvalidRequest, Message: "missing jsonrpc version or method"})
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		return s.respond(req, nil, &JSONRPCError{Code: ErrCodeMethodNotFound, Message: "unknown method " + req.Method})
	}

	paramsRaw, err := json.Marshal(req.Params)
	if err != nil {
		return s.respond(req, nil, invalidParams(err))
	}

	result, rpcErr := handler(ctx, paramsRaw)
	if rpcErr != nil {
		s.logger.Printf("ipc: %s failed: %s", req.Method, rpcErr.Message)
	}
	return s.respond(req, result, rpcErr)
}

func (s *Server) respond(req JSONRPCRequest, result interface{}, rpcErr *JSONRPCError) []byte {
	if req.IsNotification() {
		return nil
	}
	return encodeResponse(JSONRPCResponse{JSONRPC: "2.0", Result: result, Error: rpcErr, ID: req.ID})
}

func encodeResponse(resp JSONRPCResponse) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error: failed to encode response"},"id":null}`)
	}
	return b
}

func invalidParams(err error) *JSONRPCError {
	return &JSONRPCError{Code: ErrCodeInvalidParams, Message: "invalid params: " + err.Error()}
}

func internalErr(err error) *JSONRPCError {
	return &JSONRPCError{Code: ErrCodeInternalError, Message: err.Error()}
}

func appErr(code int, message string) *JSONRPCError {
	return &JSONRPCError{Code: code, Message: message}
}
