package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"featureassist/internal/api"
	"featureassist/internal/auth"
	"featureassist/internal/config"
	"featureassist/internal/embed"
	"featureassist/internal/emotion"
	"featureassist/internal/llm"
	"featureassist/internal/logger"
	"featureassist/internal/rag"
)

func main() {
	// Parse command line flags
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Initialize logger
	logger.Init(*debug)

	logger.Info("Starting feature assistant...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		logger.Info("Warning: No .env file found or error loading it")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	if logger.IsDebugEnabled() {
		logger.Debug("Configuration loaded: MilvusAddr=%s, Collection=%s, Dim=%d, TopK=%d, Threshold=%.2f, EmotionEnabled=%v",
			cfg.MilvusAddr(), cfg.MilvusCollection, cfg.EmbeddingDim, cfg.TopKResults, cfg.SimilarityThreshold, cfg.EmotionEnabled)
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	logger.Info("Initializing services...")

	store, err := rag.NewMilvusStore(ctx, cfg.MilvusAddr(), cfg.MilvusCollection, cfg.EmbeddingDim)
	if err != nil {
		logger.Error("Failed to initialize Milvus store: %v", err)
		os.Exit(1)
	}

	// The index must exist and be loaded before any read or write.
	if err := store.EnsureReady(ctx); err != nil {
		logger.Error("Failed to provision vector index: %v", err)
		os.Exit(1)
	}

	embedder := embed.NewHFEmbedder(cfg.HFAPIBase, cfg.HuggingFaceAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
	classifier := emotion.NewHFClassifier(cfg.HFAPIBase, cfg.HuggingFaceAPIKey, cfg.EmotionModel)
	generator := llm.NewHFGenerator(cfg.HFAPIBase, cfg.HuggingFaceAPIKey, cfg.LLMModel)
	policy := auth.NewPolicyService(cfg.AdminAPIKeys)

	pipeline := rag.NewPipeline(embedder, classifier, generator, store, rag.PipelineConfig{
		TopK:                cfg.TopKResults,
		SimilarityThreshold: cfg.SimilarityThreshold,
		EmotionEnabled:      cfg.EmotionEnabled,
	})
	indexer := rag.NewIndexer(embedder, store, cfg.CorpusPath)

	server := api.NewServer(pipeline, indexer, store, policy, cfg.CORSOrigins, cfg.APITitle, cfg.APIVersion)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error: %v", err)
			cancel()
		}
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error: %v", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("Milvus close error: %v", err)
	}

	logger.Info("Feature assistant has been shut down")
}
