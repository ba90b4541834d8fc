package core

import "context"

// EmbedService generates fixed-dimension embedding vectors for text.
type EmbedService interface {
	// EmbedQuery generates one embedding vector for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmotionService labels a short text with an emotion and confidence.
type EmotionService interface {
	DetectEmotion(ctx context.Context, text string) (EmotionResult, error)
}

// GenerateService produces a free-text answer from an assembled prompt.
type GenerateService interface {
	GenerateAnswer(ctx context.Context, prompt string) (string, error)
}

// VectorStore owns the lifecycle of one remote named vector index.
// EnsureReady must complete before any other call is issued.
type VectorStore interface {
	// EnsureReady guarantees the index exists and is loaded. Idempotent
	// and safe to call from concurrent goroutines.
	EnsureReady(ctx context.Context) error

	// Upsert writes vectors with their metadata in fixed-size batches and
	// returns the total number of records accepted. When ids is nil,
	// positional ids doc_0, doc_1, ... are generated.
	Upsert(ctx context.Context, vectors [][]float32, metadatas []map[string]interface{}, ids []string) (int, error)

	// Query returns up to topK matches ordered by descending score as
	// reported by the provider. filter may be empty.
	Query(ctx context.Context, vector []float32, topK int, filter string) ([]SimilarityMatch, error)

	// DeleteAll unconditionally clears every record in the index.
	DeleteAll(ctx context.Context) error

	// Stats returns the current index statistics.
	Stats(ctx context.Context) (IndexStats, error)
}
