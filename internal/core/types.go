package core

// Document is a question/answer pair prepared for indexing.
// IDs are stable across reindex runs so provider-side upserts stay idempotent.
type Document struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SimilarityMatch is a single retrieval hit from the vector index.
// Score is the provider-reported cosine similarity in [0, 1].
type SimilarityMatch struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// EmotionResult holds the classifier's label for a query and its confidence.
type EmotionResult struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// QueryResult is the final output of the query pipeline.
// Emotion is nil when emotion detection is disabled.
type QueryResult struct {
	Answer      string         `json:"answer"`
	Emotion     *EmotionResult `json:"emotion,omitempty"`
	SourcesUsed int            `json:"sources_used"`
	Confidence  float64        `json:"confidence"`
}

// IndexStats is a point-in-time snapshot of the vector index. It is
// re-fetched on every call, never cached.
type IndexStats struct {
	TotalVectors int `json:"total_vectors"`
	Dimension    int `json:"dimension"`
}
