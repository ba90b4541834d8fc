package rag

import (
	"context"
	"fmt"
	"math"

	"featureassist/internal/core"
	"featureassist/internal/emotion"
	"featureassist/internal/llm"
	"featureassist/internal/logger"
)

// ApologyAnswer is the answer substituted when generation fails; the
// pipeline always terminates with a user-presentable answer.
const ApologyAnswer = "I apologize, but I'm having trouble generating a response right now. Please try again."

// PipelineConfig tunes retrieval and toggles the emotion stage.
type PipelineConfig struct {
	TopK                int
	SimilarityThreshold float64
	EmotionEnabled      bool
}

// Pipeline is the per-request orchestrator turning a question into a
// grounded, tone-adapted answer.
type Pipeline struct {
	embedder   core.EmbedService
	classifier core.EmotionService
	generator  core.GenerateService
	store      core.VectorStore
	cfg        PipelineConfig
}

// queryState is the request-scoped context the stages mutate in order.
type queryState struct {
	query   string
	emotion core.EmotionResult
	tone    string
	vector  []float32
	matches []core.SimilarityMatch
	context string
	answer  string
}

// NewPipeline wires the pipeline from its four collaborators.
func NewPipeline(embedder core.EmbedService, classifier core.EmotionService, generator core.GenerateService, store core.VectorStore, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		embedder:   embedder,
		classifier: classifier,
		generator:  generator,
		store:      store,
		cfg:        cfg,
	}
}

// Process runs the query through the staged pipeline. Only the embedding
// and retrieval stages may return an error; emotion detection and
// generation degrade to fallback values instead.
func (p *Pipeline) Process(ctx context.Context, query string) (*core.QueryResult, error) {
	logger.Info("Processing query: %.50s...", query)

	state := &queryState{query: query}

	p.detectEmotion(ctx, state)

	if err := p.embedQuery(ctx, state); err != nil {
		return nil, err
	}
	if err := p.retrieve(ctx, state); err != nil {
		return nil, err
	}

	p.filterMatches(state)
	p.buildContext(state)
	p.generate(ctx, state)

	result := &core.QueryResult{
		Answer:      state.answer,
		SourcesUsed: len(state.matches),
		Confidence:  confidenceFor(state.matches),
	}
	if p.cfg.EmotionEnabled {
		e := state.emotion
		result.Emotion = &e
	}

	logger.Info("Query processed: %d sources, confidence %.2f", result.SourcesUsed, result.Confidence)
	return result, nil
}

// detectEmotion never fails: any classifier error degrades to the neutral
// result at full confidence.
func (p *Pipeline) detectEmotion(ctx context.Context, state *queryState) {
	state.emotion = core.EmotionResult{Emotion: emotion.Neutral, Confidence: 1.0}
	state.tone = emotion.ToneFor(emotion.Neutral)

	if !p.cfg.EmotionEnabled {
		return
	}

	result, err := p.classifier.DetectEmotion(ctx, state.query)
	if err != nil {
		logger.Warn("Emotion detection failed, falling back to neutral: %v", err)
		return
	}

	state.emotion = result
	state.tone = emotion.ToneFor(result.Emotion)
	logger.Debug("Detected emotion %s (tone: %s)", result.Emotion, state.tone)
}

func (p *Pipeline) embedQuery(ctx context.Context, state *queryState) error {
	vector, err := p.embedder.EmbedQuery(ctx, state.query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}
	state.vector = vector
	return nil
}

func (p *Pipeline) retrieve(ctx context.Context, state *queryState) error {
	matches, err := p.store.Query(ctx, state.vector, p.cfg.TopK, "")
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}
	state.matches = matches
	return nil
}

// filterMatches applies the similarity threshold as a hard cut; a match
// exactly at the threshold is kept.
func (p *Pipeline) filterMatches(state *queryState) {
	filtered := state.matches[:0]
	for _, match := range state.matches {
		if match.Score >= p.cfg.SimilarityThreshold {
			filtered = append(filtered, match)
		}
	}
	state.matches = filtered
	logger.Debug("Retained %d matches above threshold %.2f", len(state.matches), p.cfg.SimilarityThreshold)
}

// buildContext keeps one entry per surviving match so the [i] numbering
// in the prompt stays aligned with the reported source count; a match
// without content contributes an empty entry.
func (p *Pipeline) buildContext(state *queryState) {
	contents := make([]string, len(state.matches))
	for i, match := range state.matches {
		if content, ok := match.Metadata["content"].(string); ok {
			contents[i] = content
		}
	}
	state.context = llm.BuildContext(contents)
}

// generate never fails: any provider error degrades to the apology answer.
func (p *Pipeline) generate(ctx context.Context, state *queryState) {
	prompt := llm.BuildPrompt(state.query, state.context, state.tone)

	answer, err := p.generator.GenerateAnswer(ctx, prompt)
	if err != nil {
		logger.Error("Generation failed, substituting apology: %v", err)
		state.answer = ApologyAnswer
		return
	}
	state.answer = answer
}

// confidenceFor is the arithmetic mean of the surviving scores rounded to
// two decimals, or 0.0 with no survivors. It tracks retrieval agreement
// only, not generation faithfulness.
func confidenceFor(matches []core.SimilarityMatch) float64 {
	if len(matches) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, match := range matches {
		sum += match.Score
	}
	return math.Round(sum/float64(len(matches))*100) / 100
}
