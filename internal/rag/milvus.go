package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"featureassist/internal/core"
	"featureassist/internal/logger"
)

// Field names for the Milvus collection
const (
	FieldID       = "id"
	FieldContent  = "content"
	FieldQuestion = "question"
	FieldAnswer   = "answer"
	FieldVector   = "vector"
)

const (
	maxVarCharLength = "65535"
	idMaxLength      = "255"

	// UpsertBatchSize is the fixed number of records per upsert call.
	UpsertBatchSize = 100

	createAttempts = 3
	retryDelay     = 2 * time.Second
	pollInterval   = 1 * time.Second
)

// milvusAPI is the slice of the Milvus client surface the store calls,
// narrowed so tests can substitute an in-memory fake.
type milvusAPI interface {
	ListCollections(ctx context.Context, option milvusclient.ListCollectionOption, callOptions ...grpc.CallOption) ([]string, error)
	CreateCollection(ctx context.Context, option milvusclient.CreateCollectionOption, callOptions ...grpc.CallOption) error
	CreateIndex(ctx context.Context, option milvusclient.CreateIndexOption, callOptions ...grpc.CallOption) (*milvusclient.CreateIndexTask, error)
	LoadCollection(ctx context.Context, option milvusclient.LoadCollectionOption, callOptions ...grpc.CallOption) (milvusclient.LoadTask, error)
	GetLoadState(ctx context.Context, option milvusclient.GetLoadStateOption, callOptions ...grpc.CallOption) (entity.LoadState, error)
	Upsert(ctx context.Context, option milvusclient.UpsertOption, callOptions ...grpc.CallOption) (milvusclient.UpsertResult, error)
	Search(ctx context.Context, option milvusclient.SearchOption, callOptions ...grpc.CallOption) ([]milvusclient.ResultSet, error)
	Delete(ctx context.Context, option milvusclient.DeleteOption, callOptions ...grpc.CallOption) (milvusclient.DeleteResult, error)
	Flush(ctx context.Context, option milvusclient.FlushOption, callOptions ...grpc.CallOption) (flushWaiter, error)
	GetCollectionStats(ctx context.Context, option milvusclient.GetCollectionOption) (map[string]string, error)
	Close(ctx context.Context) error
}

// flushWaiter abstracts the flush task so fakes do not need to build a
// real milvusclient.FlushTask.
type flushWaiter interface {
	Await(ctx context.Context) error
}

// clientAdapter narrows *milvusclient.Client to milvusAPI. Only Flush
// needs wrapping, to hide the concrete task type.
type clientAdapter struct {
	*milvusclient.Client
}

func (a clientAdapter) Flush(ctx context.Context, option milvusclient.FlushOption, callOptions ...grpc.CallOption) (flushWaiter, error) {
	task, err := a.Client.Flush(ctx, option, callOptions...)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// MilvusStore manages the lifecycle of one named Milvus collection and
// implements core.VectorStore against it.
type MilvusStore struct {
	client     milvusAPI
	collection string
	dimension  int

	retryDelay   time.Duration
	pollInterval time.Duration

	mu    sync.Mutex
	ready bool
}

// NewMilvusStore connects to Milvus and returns a store for the named
// collection. The collection is not touched until EnsureReady.
func NewMilvusStore(ctx context.Context, addr, collection string, dimension int) (*MilvusStore, error) {
	logger.Info("Connecting to Milvus at %s (collection %s, dimension %d)", addr, collection, dimension)

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: addr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}

	return &MilvusStore{
		client:       clientAdapter{Client: c},
		collection:   collection,
		dimension:    dimension,
		retryDelay:   retryDelay,
		pollInterval: pollInterval,
	}, nil
}

// EnsureReady guarantees the collection exists, is indexed, and is loaded
// into memory. Idempotent; concurrent callers are serialized so only one
// create request can be in flight.
func (s *MilvusStore) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	exists, err := s.collectionExists(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	if !exists {
		if err := s.createCollection(ctx); err != nil {
			return err
		}
	}

	if err := s.ensureVectorIndex(ctx); err != nil {
		return err
	}
	if err := s.loadAndWait(ctx); err != nil {
		return err
	}

	s.ready = true
	logger.Info("Collection %s is ready", s.collection)
	return nil
}

func (s *MilvusStore) collectionExists(ctx context.Context) (bool, error) {
	collections, err := s.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return false, err
	}
	for _, name := range collections {
		if name == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// createCollection issues the create request, tolerating the known race
// where the provider reports a server-side error even though the create
// succeeded: after a transient error it waits, re-lists, and proceeds if
// the collection turned up.
func (s *MilvusStore) createCollection(ctx context.Context) error {
	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "Question/answer documents for grounded retrieval",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": idMaxLength,
				},
			},
			{
				Name:     FieldContent,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": maxVarCharLength,
				},
			},
			{
				Name:     FieldQuestion,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": maxVarCharLength,
				},
			},
			{
				Name:     FieldAnswer,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": maxVarCharLength,
				},
			},
			{
				Name:     FieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.dimension),
				},
			},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		logger.Info("Creating collection %s (attempt %d/%d)", s.collection, attempt, createAttempts)

		err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.collection, schema))
		if err == nil {
			logger.Info("Collection %s created", s.collection)
			return nil
		}
		if isAlreadyExists(err) {
			// Another caller won the race; not an error.
			logger.Info("Collection %s already exists", s.collection)
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		lastErr = err
		logger.Warn("Transient error creating collection %s: %v", s.collection, err)

		if err := sleepCtx(ctx, s.retryDelay); err != nil {
			return err
		}

		// The create may have succeeded server-side despite the error.
		exists, listErr := s.collectionExists(ctx)
		if listErr == nil && exists {
			logger.Info("Collection %s exists despite create error, continuing", s.collection)
			return nil
		}
	}

	return fmt.Errorf("%w: collection %s not created after %d attempts: %v",
		core.ErrIndexProvisioning, s.collection, createAttempts, lastErr)
}

func (s *MilvusStore) ensureVectorIndex(ctx context.Context) error {
	idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
	_, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.collection, FieldVector, idx))
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("failed to create index on vector field: %w", err)
	}
	return nil
}

// loadAndWait loads the collection into memory and polls the load state
// until it reports loaded. Each tick is cheap; the overall wait is bounded
// only by the caller's context.
func (s *MilvusStore) loadAndWait(ctx context.Context) error {
	_, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection %s: %w", s.collection, err)
	}

	for {
		state, err := s.client.GetLoadState(ctx, milvusclient.NewGetLoadStateOption(s.collection))
		if err != nil {
			return fmt.Errorf("failed to get load state for %s: %w", s.collection, err)
		}
		if state.State == entity.LoadStateLoaded {
			return nil
		}
		logger.Debug("Waiting for collection %s to load (state %v)", s.collection, state.State)
		if err := sleepCtx(ctx, s.pollInterval); err != nil {
			return err
		}
	}
}

// Upsert writes vectors with their metadata in batches of UpsertBatchSize
// and returns the total record count accepted. Batches already sent before
// an error stay committed; upserts are idempotent per id, so retrying the
// whole call is safe.
func (s *MilvusStore) Upsert(ctx context.Context, vectors [][]float32, metadatas []map[string]interface{}, ids []string) (int, error) {
	if ids == nil {
		ids = positionalIDs(len(vectors))
	}
	if len(vectors) != len(metadatas) || len(vectors) != len(ids) {
		return 0, fmt.Errorf("%w: mismatched batch lengths (vectors=%d metadatas=%d ids=%d)",
			core.ErrValidation, len(vectors), len(metadatas), len(ids))
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, want %d",
				core.ErrValidation, i, len(v), s.dimension)
		}
	}

	total := 0
	for start := 0; start < len(vectors); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}

		batchIDs := ids[start:end]
		contents := make([]string, 0, end-start)
		questions := make([]string, 0, end-start)
		answers := make([]string, 0, end-start)
		for _, m := range metadatas[start:end] {
			contents = append(contents, metaString(m, FieldContent))
			questions = append(questions, metaString(m, FieldQuestion))
			answers = append(answers, metaString(m, FieldAnswer))
		}

		_, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection,
			column.NewColumnVarChar(FieldID, batchIDs),
			column.NewColumnVarChar(FieldContent, contents),
			column.NewColumnVarChar(FieldQuestion, questions),
			column.NewColumnVarChar(FieldAnswer, answers),
			column.NewColumnFloatVector(FieldVector, s.dimension, vectors[start:end]),
		))
		if err != nil {
			return total, fmt.Errorf("failed to upsert batch starting at %d: %w", start, err)
		}
		total += end - start
		logger.Debug("Upserted batch of %d records (total %d)", end-start, total)
	}

	if err := s.flush(ctx); err != nil {
		return total, err
	}

	logger.Info("Upserted %d records into %s", total, s.collection)
	return total, nil
}

// Query returns up to topK matches ordered by descending score as reported
// by the provider. No client-side re-sorting.
func (s *MilvusStore) Query(ctx context.Context, vector []float32, topK int, filter string) ([]core.SimilarityMatch, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, want %d",
			core.ErrValidation, len(vector), s.dimension)
	}

	opt := milvusclient.NewSearchOption(s.collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldVector).
		WithOutputFields(FieldContent, FieldQuestion, FieldAnswer)
	if filter != "" {
		opt = opt.WithFilter(filter)
	}

	resultSets, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	if len(resultSets) == 0 {
		return []core.SimilarityMatch{}, nil
	}

	rs := resultSets[0]
	matches := make([]core.SimilarityMatch, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := rs.IDs.GetAsString(i)
		if err != nil {
			logger.Warn("Skipping result %d: failed to read id: %v", i, err)
			continue
		}

		metadata := make(map[string]interface{}, 3)
		for _, field := range []string{FieldContent, FieldQuestion, FieldAnswer} {
			col := rs.GetColumn(field)
			if col == nil {
				continue
			}
			if value, err := col.GetAsString(i); err == nil {
				metadata[field] = value
			}
		}

		score := float64(0)
		if i < len(rs.Scores) {
			score = float64(rs.Scores[i])
		}

		matches = append(matches, core.SimilarityMatch{
			ID:       id,
			Score:    score,
			Metadata: metadata,
		})
	}

	logger.Debug("Search returned %d matches", len(matches))
	return matches, nil
}

// DeleteAll unconditionally clears every record in the collection.
// Destructive; callers gate this behind the force-reindex flag.
func (s *MilvusStore) DeleteAll(ctx context.Context) error {
	logger.Warn("Deleting all records from collection %s", s.collection)

	_, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).
		WithExpr(fmt.Sprintf(`%s != ""`, FieldID)))
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}

	return s.flush(ctx)
}

// Stats returns the current record count and dimension. Fetched fresh on
// every call so it can serve as the "already indexed" gate.
func (s *MilvusStore) Stats(ctx context.Context) (core.IndexStats, error) {
	stats, err := s.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(s.collection))
	if err != nil {
		return core.IndexStats{}, fmt.Errorf("failed to get collection stats: %w", err)
	}

	total := 0
	if raw, ok := stats["row_count"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			total = n
		}
	}

	return core.IndexStats{
		TotalVectors: total,
		Dimension:    s.dimension,
	}, nil
}

// Close closes the connection to Milvus.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func (s *MilvusStore) flush(ctx context.Context) error {
	task, err := s.client.Flush(ctx, milvusclient.NewFlushOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection %s: %w", s.collection, err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to await flush of %s: %w", s.collection, err)
	}
	return nil
}

// isTransient reports whether an error is a server-side condition worth
// retrying, as opposed to a client or validation mistake.
func isTransient(err error) bool {
	s, ok := status.FromError(err)
	if !ok {
		// Non-gRPC transport failures (connection resets etc).
		return true
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func isAlreadyExists(err error) bool {
	if status.Code(err) == codes.AlreadyExists {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exist")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func positionalIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc_%d", i)
	}
	return ids
}

func metaString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
