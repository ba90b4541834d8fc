package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featureassist/internal/core"
	"featureassist/internal/llm"
)

type fakeEmbedder struct {
	vector []float32
	err    error

	batchVectors [][]float32
	batchErr     error
	batchCalls   int
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	if f.batchVectors != nil {
		return f.batchVectors, nil
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

type fakeClassifier struct {
	result core.EmotionResult
	err    error
}

func (f *fakeClassifier) DetectEmotion(ctx context.Context, text string) (core.EmotionResult, error) {
	return f.result, f.err
}

type fakeGenerator struct {
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeGenerator) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeStore struct {
	stats    core.IndexStats
	statsErr error

	matches  []core.SimilarityMatch
	queryErr error

	upsertCalls int
	upsertTotal int
	upsertErr   error
	lastIDs     []string

	deleteCalls int
	deleteErr   error
}

func (f *fakeStore) EnsureReady(ctx context.Context) error { return nil }

func (f *fakeStore) Upsert(ctx context.Context, vectors [][]float32, metadatas []map[string]interface{}, ids []string) (int, error) {
	f.upsertCalls++
	f.lastIDs = ids
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upsertTotal += len(vectors)
	return len(vectors), nil
}

func (f *fakeStore) Query(ctx context.Context, vector []float32, topK int, filter string) ([]core.SimilarityMatch, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeStore) DeleteAll(ctx context.Context) error {
	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeStore) Stats(ctx context.Context) (core.IndexStats, error) {
	if f.statsErr != nil {
		return core.IndexStats{}, f.statsErr
	}
	return f.stats, nil
}

func match(id string, score float64, content string) core.SimilarityMatch {
	return core.SimilarityMatch{
		ID:    id,
		Score: score,
		Metadata: map[string]interface{}{
			"content": content,
		},
	}
}

func newTestPipeline(embedder *fakeEmbedder, classifier *fakeClassifier, generator *fakeGenerator, store *fakeStore) *Pipeline {
	return NewPipeline(embedder, classifier, generator, store, PipelineConfig{
		TopK:                3,
		SimilarityThreshold: 0.7,
		EmotionEnabled:      true,
	})
}

func TestProcess_HappyPath(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	classifier := &fakeClassifier{result: core.EmotionResult{Emotion: "joy", Confidence: 0.93}}
	generator := &fakeGenerator{answer: "The feature works like this."}
	store := &fakeStore{matches: []core.SimilarityMatch{
		match("doc_0", 0.9, "Q: How?\nA: Like this."),
		match("doc_1", 0.8, "Q: What?\nA: That."),
		match("doc_2", 0.7, "Q: When?\nA: Now."),
	}}

	result, err := newTestPipeline(embedder, classifier, generator, store).Process(context.Background(), "How does it work?")
	require.NoError(t, err)

	assert.Equal(t, "The feature works like this.", result.Answer)
	assert.Equal(t, 3, result.SourcesUsed)
	require.NotNil(t, result.Emotion)
	assert.Equal(t, "joy", result.Emotion.Emotion)
	assert.Contains(t, generator.lastPrompt, "[1] Q: How?")
	assert.Contains(t, generator.lastPrompt, "[3] Q: When?")
	assert.Contains(t, generator.lastPrompt, "enthusiastic and positive")
}

func TestProcess_ThresholdBoundary(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	classifier := &fakeClassifier{result: core.EmotionResult{Emotion: "neutral", Confidence: 1.0}}
	generator := &fakeGenerator{answer: "ok"}
	store := &fakeStore{matches: []core.SimilarityMatch{
		match("at", 0.7, "exactly at threshold"),
		match("below", 0.699999, "just below threshold"),
	}}

	result, err := newTestPipeline(embedder, classifier, generator, store).Process(context.Background(), "q")
	require.NoError(t, err)

	// A match exactly at the threshold is kept; one epsilon below is dropped.
	assert.Equal(t, 1, result.SourcesUsed)
	assert.Contains(t, generator.lastPrompt, "exactly at threshold")
	assert.NotContains(t, generator.lastPrompt, "just below threshold")
}

func TestProcess_ConfidenceIsMeanOfSurvivors(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	classifier := &fakeClassifier{result: core.EmotionResult{Emotion: "neutral", Confidence: 1.0}}
	generator := &fakeGenerator{answer: "ok"}
	store := &fakeStore{matches: []core.SimilarityMatch{
		match("a", 0.9, "a"),
		match("b", 0.8, "b"),
		match("c", 0.7, "c"),
	}}

	result, err := newTestPipeline(embedder, classifier, generator, store).Process(context.Background(), "q")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestProcess_NoSurvivors(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	classifier := &fakeClassifier{result: core.EmotionResult{Emotion: "neutral", Confidence: 1.0}}
	generator := &fakeGenerator{answer: "I don't have information about that in my knowledge base"}
	store := &fakeStore{matches: []core.SimilarityMatch{
		match("low", 0.2, "irrelevant"),
	}}

	result, err := newTestPipeline(embedder, classifier, generator, store).Process(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, 0, result.SourcesUsed)
	assert.Zero(t, result.Confidence)
	// The prompt still carries a well-formed context block.
	assert.Contains(t, generator.lastPrompt, llm.NoContextPlaceholder)
}

func TestProcess_ClassifierFailureFallsBackToNeutral(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	classifier := &fakeClassifier{err: errors.New("classifier timeout")}
	generator := &fakeGenerator{answer: "still answering"}
	store := &fakeStore{matches: []core.SimilarityMatch{match("a", 0.9, "a")}}

	result, err := newTestPipeline(embedder, classifier, generator, store).Process(context.Background(), "q")
	require.NoError(t, err)

	require.NotNil(t, result.Emotion)
	assert.Equal(t, "neutral", result.Emotion.Emotion)
	assert.InDelta(t, 1.0, result.Emotion.Confidence, 1e-9)
	assert.NotEmpty(t, result.Answer)
	assert.Contains(t, generator.lastPrompt, "professional and straightforward")
}

func TestProcess_GenerationFailureSubstitutesApology(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	classifier := &fakeClassifier{result: core.EmotionResult{Emotion: "neutral", Confidence: 1.0}}
	generator := &fakeGenerator{err: errors.New("model overloaded")}
	store := &fakeStore{matches: []core.SimilarityMatch{match("a", 0.9, "a")}}

	result, err := newTestPipeline(embedder, classifier, generator, store).Process(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, ApologyAnswer, result.Answer)
	assert.Equal(t, 1, result.SourcesUsed)
}

func TestProcess_EmbedFailurePropagates(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding down")}
	classifier := &fakeClassifier{result: core.EmotionResult{Emotion: "neutral", Confidence: 1.0}}
	generator := &fakeGenerator{answer: "never reached"}
	store := &fakeStore{}

	_, err := newTestPipeline(embedder, classifier, generator, store).Process(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
	assert.Empty(t, generator.lastPrompt)
}

func TestProcess_RetrievalFailurePropagates(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	classifier := &fakeClassifier{result: core.EmotionResult{Emotion: "neutral", Confidence: 1.0}}
	generator := &fakeGenerator{answer: "never reached"}
	store := &fakeStore{queryErr: errors.New("index offline")}

	_, err := newTestPipeline(embedder, classifier, generator, store).Process(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to retrieve context")
	assert.Empty(t, generator.lastPrompt)
}

func TestProcess_EmotionDisabledOmitsResult(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	classifier := &fakeClassifier{result: core.EmotionResult{Emotion: "anger", Confidence: 0.99}}
	generator := &fakeGenerator{answer: "ok"}
	store := &fakeStore{matches: []core.SimilarityMatch{match("a", 0.9, "a")}}

	pipeline := NewPipeline(embedder, classifier, generator, store, PipelineConfig{
		TopK:                3,
		SimilarityThreshold: 0.7,
		EmotionEnabled:      false,
	})

	result, err := pipeline.Process(context.Background(), "q")
	require.NoError(t, err)

	assert.Nil(t, result.Emotion)
	// The disabled stage falls back to the neutral tone directive.
	assert.Contains(t, generator.lastPrompt, "professional and straightforward")
	assert.NotContains(t, generator.lastPrompt, "calm and understanding")
}

func TestProcess_ContextNumberingMatchesSourceCount(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	classifier := &fakeClassifier{result: core.EmotionResult{Emotion: "neutral", Confidence: 1.0}}
	generator := &fakeGenerator{answer: "ok"}
	store := &fakeStore{matches: []core.SimilarityMatch{
		match("doc_0", 0.9, "first passage"),
		{ID: "doc_1", Score: 0.8, Metadata: map[string]interface{}{"question": "no content field"}},
		match("doc_2", 0.8, "third passage"),
	}}

	result, err := newTestPipeline(embedder, classifier, generator, store).Process(context.Background(), "q")
	require.NoError(t, err)

	// A match without content still occupies its slot so the bracketed
	// numbering lines up with the reported source count.
	assert.Equal(t, 3, result.SourcesUsed)
	assert.Contains(t, generator.lastPrompt, "[1] first passage")
	assert.Contains(t, generator.lastPrompt, "[2] ")
	assert.Contains(t, generator.lastPrompt, "[3] third passage")
}

func TestConfidenceFor(t *testing.T) {
	assert.Zero(t, confidenceFor(nil))

	// Rounded half up to two decimals.
	scores := []core.SimilarityMatch{{Score: 0.75}, {Score: 0.76}}
	assert.InDelta(t, 0.76, confidenceFor(scores), 1e-9)

	assert.InDelta(t, 0.33, confidenceFor([]core.SimilarityMatch{{Score: 0.333}}), 1e-9)
}
