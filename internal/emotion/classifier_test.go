package emotion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEmotion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/models/") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[{"label":"Sadness","score":0.91},{"label":"neutral","score":0.05}]]`))
	}))
	defer srv.Close()

	c := NewHFClassifier(srv.URL, "test-key", "test-model")
	result, err := c.DetectEmotion(context.Background(), "I lost my saved layouts")
	require.NoError(t, err)

	assert.Equal(t, "sadness", result.Emotion)
	assert.InDelta(t, 0.91, result.Confidence, 1e-9)
}

func TestDetectEmotion_TruncatesInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Inputs string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Inputs, 512)

		w.Write([]byte(`[[{"label":"neutral","score":1.0}]]`))
	}))
	defer srv.Close()

	c := NewHFClassifier(srv.URL, "test-key", "test-model")
	_, err := c.DetectEmotion(context.Background(), strings.Repeat("x", 2000))
	require.NoError(t, err)
}

func TestDetectEmotion_TruncatesOnRuneBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Inputs string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		// Multi-byte input must be cut per character, never mid-rune.
		assert.Equal(t, strings.Repeat("é", 512), body.Inputs)
		assert.True(t, utf8.ValidString(body.Inputs))

		w.Write([]byte(`[[{"label":"neutral","score":1.0}]]`))
	}))
	defer srv.Close()

	c := NewHFClassifier(srv.URL, "test-key", "test-model")
	_, err := c.DetectEmotion(context.Background(), strings.Repeat("é", 600))
	require.NoError(t, err)
}

func TestDetectEmotion_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHFClassifier(srv.URL, "test-key", "test-model")
	_, err := c.DetectEmotion(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestDetectEmotion_NoLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewHFClassifier(srv.URL, "test-key", "test-model")
	_, err := c.DetectEmotion(context.Background(), "hello")
	require.Error(t, err)
}
