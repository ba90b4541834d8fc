package rag

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"featureassist/internal/core"
	"featureassist/internal/logger"
)

// Indexing outcome statuses reported to callers.
const (
	StatusSuccess        = "success"
	StatusAlreadyIndexed = "already_indexed"
	StatusNoDocuments    = "no_documents"
)

// ChatMessage is one turn of a recorded conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CorpusRecord is one line of the newline-delimited JSON corpus.
type CorpusRecord struct {
	Messages []ChatMessage `json:"messages"`
}

// IndexOutcome is the result of one bulk-indexing run.
type IndexOutcome struct {
	Status       string `json:"status"`
	IndexedCount int    `json:"indexed_count"`
}

// Indexer populates the vector index from a question/answer corpus.
type Indexer struct {
	embedder   core.EmbedService
	store      core.VectorStore
	corpusPath string
}

// NewIndexer creates a bulk indexer over the given corpus file.
func NewIndexer(embedder core.EmbedService, store core.VectorStore, corpusPath string) *Indexer {
	return &Indexer{
		embedder:   embedder,
		store:      store,
		corpusPath: corpusPath,
	}
}

// LoadCorpus parses the newline-delimited JSON corpus. Malformed lines are
// logged and skipped so partial corruption never blocks the valid
// remainder. A missing file is core.ErrSourceNotFound.
func LoadCorpus(path string) ([]CorpusRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("failed to open corpus %s: %w", path, err)
	}
	defer f.Close()

	var records []CorpusRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record CorpusRecord
		if err := json.Unmarshal(line, &record); err != nil {
			logger.Warn("Skipping invalid JSON on line %d of %s: %v", lineNum, path, err)
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}

	logger.Info("Loaded %d records from %s", len(records), path)
	return records, nil
}

// PrepareDocuments turns raw records into indexable documents. For each
// record the first user message and first assistant message form a Q/A
// pair; records missing either role are dropped as expected noise.
func PrepareDocuments(records []CorpusRecord) []core.Document {
	var documents []core.Document

	for idx, record := range records {
		var question, answer string
		for _, msg := range record.Messages {
			switch msg.Role {
			case "user":
				if question == "" {
					question = msg.Content
				}
			case "assistant":
				if answer == "" {
					answer = msg.Content
				}
			}
		}
		if question == "" || answer == "" {
			continue
		}

		documents = append(documents, core.Document{
			ID:       fmt.Sprintf("doc_%d", idx),
			Content:  fmt.Sprintf("Q: %s\nA: %s", question, answer),
			Question: question,
			Answer:   answer,
		})
	}

	logger.Info("Prepared %d documents for indexing", len(documents))
	return documents
}

// Run executes one indexing pass. When the index already holds vectors and
// forceReindex is false it is a no-op; with forceReindex the index is
// cleared first. Document ids are preserved as vector ids so re-running
// with the same corpus is idempotent.
func (ix *Indexer) Run(ctx context.Context, forceReindex bool) (*IndexOutcome, error) {
	stats, err := ix.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read index stats: %w", err)
	}

	if stats.TotalVectors > 0 && !forceReindex {
		logger.Info("Index already holds %d vectors, skipping", stats.TotalVectors)
		return &IndexOutcome{
			Status:       StatusAlreadyIndexed,
			IndexedCount: stats.TotalVectors,
		}, nil
	}

	records, err := LoadCorpus(ix.corpusPath)
	if err != nil {
		return nil, err
	}
	documents := PrepareDocuments(records)
	if len(documents) == 0 {
		return &IndexOutcome{Status: StatusNoDocuments}, nil
	}

	if forceReindex && stats.TotalVectors > 0 {
		logger.Info("Force reindex requested, clearing existing data")
		if err := ix.store.DeleteAll(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear index: %w", err)
		}
	}

	contents := make([]string, len(documents))
	metadatas := make([]map[string]interface{}, len(documents))
	ids := make([]string, len(documents))
	for i, doc := range documents {
		contents[i] = doc.Content
		metadatas[i] = map[string]interface{}{
			"content":  doc.Content,
			"question": doc.Question,
			"answer":   doc.Answer,
		}
		ids[i] = doc.ID
	}

	logger.Info("Generating embeddings for %d documents", len(documents))
	vectors, err := ix.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}

	count, err := ix.store.Upsert(ctx, vectors, metadatas, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to index documents: %w", err)
	}

	return &IndexOutcome{
		Status:       StatusSuccess,
		IndexedCount: count,
	}, nil
}
