package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"featureassist/internal/logger"
)

// DefaultTimeout is generous because text generation is the slowest
// remote call in the pipeline.
const DefaultTimeout = 60 * time.Second

// HFGenerator produces answers through the Hugging Face Inference API
// text-generation endpoint.
type HFGenerator struct {
	apiBase    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// apiError is the error shape the inference API returns in its body,
// sometimes alongside a 200 status while a model is loading.
type apiError struct {
	Error string `json:"error"`
}

// NewHFGenerator creates a new generation client.
func NewHFGenerator(apiBase, apiKey, model string) *HFGenerator {
	return &HFGenerator{
		apiBase: apiBase,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// GenerateAnswer sends the assembled prompt to the model and returns the
// generated text. Callers substitute a fallback answer on error.
func (g *HFGenerator) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/models/%s", g.apiBase, g.model)

	reqBody := map[string]interface{}{
		"inputs": prompt,
		"parameters": map[string]interface{}{
			"max_new_tokens":   300,
			"temperature":      0.7,
			"top_p":            0.9,
			"return_full_text": false,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	logger.Info("Sending generation request to model %s (%d prompt bytes)", g.model, len(prompt))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	// Check for an error payload regardless of status code.
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return "", fmt.Errorf("generation API error: %s", apiErr.Error)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation API HTTP error (status %d): %s", resp.StatusCode, string(body))
	}

	// The endpoint returns either a list of generations or a single object.
	var list []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0].GeneratedText), nil
	}

	var single struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &single); err == nil && single.GeneratedText != "" {
		return strings.TrimSpace(single.GeneratedText), nil
	}

	return "", fmt.Errorf("failed to decode generation response")
}
