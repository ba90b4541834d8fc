package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"featureassist/internal/auth"
	"featureassist/internal/core"
	"featureassist/internal/logger"
	"featureassist/internal/rag"
)

// maxQueryLength bounds the accepted query size.
const maxQueryLength = 1000

// adminKeyHeader carries the admin API key for gated operations.
const adminKeyHeader = "X-Admin-Key"

// Server exposes the query pipeline, bulk indexer and index health over
// HTTP. All collaborators are injected at construction; there is no
// ambient global state.
type Server struct {
	pipeline *rag.Pipeline
	indexer  *rag.Indexer
	store    core.VectorStore
	policy   *auth.PolicyService

	corsOrigins []string
	title       string
	version     string
}

// NewServer wires the HTTP boundary from its collaborators.
func NewServer(pipeline *rag.Pipeline, indexer *rag.Indexer, store core.VectorStore, policy *auth.PolicyService, corsOrigins []string, title, version string) *Server {
	return &Server{
		pipeline:    pipeline,
		indexer:     indexer,
		store:       store,
		policy:      policy,
		corsOrigins: corsOrigins,
		title:       title,
		version:     version,
	}
}

// Handler returns the routed handler with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/index", s.handleIndex)

	return withCORS(s.corsOrigins, withLogging(mux))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    s.title,
		"version": s.version,
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		logger.Error("Health check failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "Service unhealthy")
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Services: map[string]string{
			"embedding":         "operational",
			"emotion":           "operational",
			"llm":               "operational",
			"vector_store":      "operational",
			"indexed_documents": strconv.Itoa(stats.TotalVectors),
		},
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query must not be empty")
		return
	}
	if utf8.RuneCountInString(req.Query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Query exceeds %d characters", maxQueryLength))
		return
	}

	result, err := s.pipeline.Process(r.Context(), req.Query)
	if err != nil {
		// No partial answer and no provider detail leaks to the caller.
		logger.Error("Error processing query: %v", err)
		writeError(w, http.StatusInternalServerError, "Error processing query")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !s.policy.CanReindex(r.Header.Get(adminKeyHeader)) {
		writeError(w, http.StatusForbidden, "Admin key required")
		return
	}

	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	outcome, err := s.indexer.Run(r.Context(), req.ForceReindex)
	if err != nil {
		if errors.Is(err, core.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "Corpus file not found")
			return
		}
		logger.Error("Error indexing data: %v", err)
		writeError(w, http.StatusInternalServerError, "Error indexing data")
		return
	}

	writeJSON(w, http.StatusOK, IndexResponse{
		Status:       outcome.Status,
		IndexedCount: outcome.IndexedCount,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
