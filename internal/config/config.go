package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config represents the application configuration.
type Config struct {
	// Hugging Face inference providers
	HuggingFaceAPIKey string
	HFAPIBase         string
	EmbeddingModel    string
	EmotionModel      string
	LLMModel          string

	// Milvus vector index
	MilvusHost       string
	MilvusPort       string
	MilvusCollection string
	EmbeddingDim     int

	// Retrieval tuning
	TopKResults         int
	SimilarityThreshold float64
	EmotionEnabled      bool

	// Corpus and transport
	CorpusPath   string
	HTTPAddr     string
	CORSOrigins  []string
	AdminAPIKeys string

	APITitle   string
	APIVersion string
}

// Load reads configuration from environment variables. Callers load any
// .env file beforehand (godotenv in main).
func Load() (*Config, error) {
	cfg := &Config{
		HuggingFaceAPIKey: os.Getenv("HUGGINGFACE_API_KEY"),
		HFAPIBase:         getEnvWithDefault("HF_API_BASE", "https://api-inference.huggingface.co"),
		EmbeddingModel:    getEnvWithDefault("EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		EmotionModel:      getEnvWithDefault("EMOTION_MODEL", "j-hartmann/emotion-english-distilroberta-base"),
		LLMModel:          getEnvWithDefault("LLM_MODEL", "meta-llama/llama-3.1-8b-instruct"),

		MilvusHost:       getEnvWithDefault("MILVUS_HOST", "milvus"),
		MilvusPort:       getEnvWithDefault("MILVUS_PORT", "19530"),
		MilvusCollection: getEnvWithDefault("MILVUS_COLLECTION", "feature_assistant"),
		EmbeddingDim:     getEnvIntWithDefault("EMBEDDING_DIM", 384),

		TopKResults:         getEnvIntWithDefault("TOP_K_RESULTS", 3),
		SimilarityThreshold: getEnvFloatWithDefault("SIMILARITY_THRESHOLD", 0.7),
		EmotionEnabled:      getEnvBoolWithDefault("EMOTION_ENABLED", true),

		CorpusPath:   getEnvWithDefault("CORPUS_PATH", "data/features.jsonl"),
		HTTPAddr:     getEnvWithDefault("HTTP_ADDR", ":8080"),
		CORSOrigins:  splitCSV(getEnvWithDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		AdminAPIKeys: os.Getenv("ADMIN_API_KEYS"),

		APITitle:   getEnvWithDefault("API_TITLE", "Feature Assistant API"),
		APIVersion: getEnvWithDefault("API_VERSION", "1.0.0"),
	}

	if cfg.HuggingFaceAPIKey == "" {
		return nil, fmt.Errorf("HUGGINGFACE_API_KEY environment variable is required")
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", cfg.EmbeddingDim)
	}

	return cfg, nil
}

// MilvusAddr returns the host:port address of the Milvus instance.
func (c *Config) MilvusAddr() string {
	return c.MilvusHost + ":" + c.MilvusPort
}

// getEnvWithDefault gets an environment variable or returns a default value.
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
