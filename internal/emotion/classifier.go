package emotion

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

// DefaultTimeout bounds each classification request.
const DefaultTimeout = 10 * time.Second

// maxInputChars caps the text sent to the classifier.
const maxInputChars = 512

// HFClassifier labels text with an emotion through the Hugging Face
// Inference API text-classification pipeline.
type HFClassifier struct {
	apiBase    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHFClassifier creates a new emotion classifier client.
func NewHFClassifier(apiBase, apiKey, model string) *HFClassifier {
	return &HFClassifier{
		apiBase: apiBase,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// DetectEmotion classifies the primary emotion in text. Input is truncated
// to 512 characters before sending. Callers are expected to fall back to
// neutral when an error is returned.
func (c *HFClassifier) DetectEmotion(ctx context.Context, text string) (core.EmotionResult, error) {
	if runes := []rune(text); len(runes) > maxInputChars {
		text = string(runes[:maxInputChars])
	}

	url := fmt.Sprintf("%s/models/%s", c.apiBase, c.model)

	reqBody := map[string]interface{}{
		"inputs": text,
		"options": map[string]bool{
			"wait_for_model": true,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return core.EmotionResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return core.EmotionResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.EmotionResult{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.EmotionResult{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return core.EmotionResult{}, fmt.Errorf("emotion API HTTP error (status %d): %s", resp.StatusCode, string(body))
	}

	// The classification pipeline returns one ranked label list per input.
	var ranked [][]struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(body, &ranked); err != nil {
		return core.EmotionResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(ranked) == 0 || len(ranked[0]) == 0 {
		return core.EmotionResult{}, fmt.Errorf("emotion API returned no labels")
	}

	top := ranked[0][0]
	logger.Debug("Detected emotion %q (confidence %.2f)", top.Label, top.Score)

	return core.EmotionResult{
		Emotion:    normalizeLabel(top.Label),
		Confidence: top.Score,
	}, nil
}
