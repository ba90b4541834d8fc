package api

import "featureassist/internal/core"

// QueryRequest asks the assistant a single free-text question.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse mirrors core.QueryResult on the wire.
type QueryResponse = core.QueryResult

// IndexRequest triggers a bulk-indexing run.
type IndexRequest struct {
	ForceReindex bool `json:"force_reindex"`
}

// IndexResponse reports the indexing outcome.
type IndexResponse struct {
	Status       string `json:"status"`
	IndexedCount int    `json:"indexed_count"`
}

// HealthResponse is the health snapshot returned by /api/health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// ErrorResponse carries a generic, provider-detail-free error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
