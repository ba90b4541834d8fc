package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"featureassist/internal/core"
	"featureassist/internal/logger"
)

// DefaultTimeout bounds each embedding request.
const DefaultTimeout = 10 * time.Second

// HFEmbedder generates sentence embeddings through the Hugging Face
// Inference API feature-extraction pipeline.
type HFEmbedder struct {
	apiBase    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
}

// NewHFEmbedder creates a new embedding client. dimension is the expected
// vector length; any response of a different length is a validation error.
func NewHFEmbedder(apiBase, apiKey, model string, dimension int) *HFEmbedder {
	return &HFEmbedder{
		apiBase:   apiBase,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Dimension returns the configured embedding dimension.
func (e *HFEmbedder) Dimension() int {
	return e.dimension
}

// EmbedQuery generates one embedding vector for a single text.
func (e *HFEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// EmbedBatch generates one embedding vector per input text, in order.
func (e *HFEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", e.apiBase, e.model)

	reqBody := map[string]interface{}{
		"inputs": texts,
		"options": map[string]bool{
			"wait_for_model": true,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	logger.Debug("Requesting %d embeddings from model %s", len(texts), e.model)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API HTTP error (status %d): %s", resp.StatusCode, string(body))
	}

	var vectors [][]float32
	if err := json.Unmarshal(body, &vectors); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}

	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, want %d",
				core.ErrValidation, i, len(v), e.dimension)
		}
	}

	return vectors, nil
}
