package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tomeworks/tome/internal/embedding"
)

// Store is a Qdrant-backed vector store.
type Store struct {
	client   *qdrant.Client
	embedder embedding.Embedder
	logger   *slog.Logger
	options  options
}

// New creates a Qdrant store.
func New(opts ...Option) (*Store, error) {
	storeOptions := parseOptions(opts...)
	if storeOptions.embedder == nil {
		return nil, ErrMissingEmbedder
	}

	logger := storeOptions.logger.With("component", "qdrant_store")

	config := &qdrant.Config{
		Host:   storeOptions.host,
		Port:   storeOptions.port,
		UseTLS: storeOptions.useTLS,
	}
	if storeOptions.apiKey != "" {
		config.APIKey = storeOptions.apiKey
	}

	client, err := qdrant.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	logger.Info("qdrant store initialized",
		"host", storeOptions.host, "port", storeOptions.port, "tls", storeOptions.useTLS)

	return &Store{
		client:   client,
		embedder: storeOptions.embedder,
		logger:   logger,
		options:  storeOptions,
	}, nil
}

// AddDocuments embeds docs and upserts them into the collection, creating it
// on first use. Returns the point IDs in input order.
func (s *Store) AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, ErrMissingCollectionName
	}
	if len(docs) == 0 {
		return []string{}, nil
	}

	start := time.Now()

	if err := s.ensureCollection(ctx, collection); err != nil {
		return nil, fmt.Errorf("collection preparation failed: %w", err)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("document embedding stage failed: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	points := make([]*qdrant.PointStruct, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		id := documentID(doc)
		ids[i] = id
		points[i] = &qdrant.PointStruct{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vectors[i]}}},
			Payload: documentToPayload(doc),
		}
	}

	for i := 0; i < len(points); i += s.options.batchSize {
		end := min(i+s.options.batchSize, len(points))
		if err := s.upsertWithRetry(ctx, collection, points[i:end]); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "documents added",
		"collection", collection, "count", len(docs), "duration", time.Since(start))
	return ids, nil
}

func (s *Store) upsertWithRetry(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	var lastErr error
	delay := s.options.retryDelay

	for attempt := 0; attempt <= s.options.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * 1.5)
			if delay > s.options.maxRetryDelay {
				delay = s.options.maxRetryDelay
			}
		}

		wait := true
		_, err := s.client.GetPointsClient().Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         points,
		})
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("upsert failed after %d attempts: %w", s.options.retryAttempts+1, lastErr)
}

// SimilaritySearch embeds the query and returns the closest documents with
// their scores.
func (s *Store) SimilaritySearch(ctx context.Context, collection, query string, limit int) ([]SearchResult, error) {
	return s.SimilaritySearchWithThreshold(ctx, collection, query, limit, 0)
}

// SimilaritySearchWithThreshold is SimilaritySearch with a minimum score cut.
func (s *Store) SimilaritySearchWithThreshold(
	ctx context.Context,
	collection, query string,
	limit int,
	scoreThreshold float32,
) ([]SearchResult, error) {
	return s.SimilaritySearchWithFilter(ctx, collection, query, limit, scoreThreshold, nil)
}

// SimilaritySearchWithFilter is SimilaritySearchWithThreshold constrained to
// points whose payload matches filters (e.g. {"source": "notes.md"}). A nil
// or empty filter matches everything.
func (s *Store) SimilaritySearchWithFilter(
	ctx context.Context,
	collection, query string,
	limit int,
	scoreThreshold float32,
	filters map[string]any,
) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	start := time.Now()
	searchResult, err := s.client.GetPointsClient().Search(ctx,
		searchRequest(collection, queryVector, limit, scoreThreshold, buildFilter(filters)))
	if err != nil {
		if stat, ok := status.FromError(err); ok && stat.Code() == codes.NotFound {
			s.logger.WarnContext(ctx, "collection not found during search", "collection", collection)
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	points := searchResult.GetResult()
	results := make([]SearchResult, len(points))
	for i, point := range points {
		results[i] = SearchResult{
			Document: payloadToDocument(point.GetPayload()),
			Score:    point.GetScore(),
		}
	}

	s.logger.DebugContext(ctx, "similarity search completed",
		"collection", collection, "results", len(results), "duration", time.Since(start))
	return results, nil
}

// searchRequest assembles the Qdrant search call. filter may be nil.
func searchRequest(collection string, vector []float32, limit int, scoreThreshold float32, filter *qdrant.Filter) *qdrant.SearchPoints {
	return &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
		ScoreThreshold: &scoreThreshold,
		Filter:         filter,
	}
}

// DeleteByFilter removes all points whose payload matches the filter, used
// when a source file changed and its old chunks must go.
func (s *Store) DeleteByFilter(ctx context.Context, collection string, filters map[string]any) error {
	qdrantFilter := buildFilter(filters)
	if qdrantFilter == nil {
		return ErrEmptyFilter
	}

	wait := true
	_, err := s.client.GetPointsClient().Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: qdrantFilter},
		},
	})
	if err != nil {
		if stat, ok := status.FromError(err); ok && stat.Code() == codes.NotFound {
			return ErrCollectionNotFound
		}
		return fmt.Errorf("failed to delete documents by filter: %w", err)
	}

	s.logger.InfoContext(ctx, "documents deleted by filter", "collection", collection)
	return nil
}

// ListCollections returns the names of all Qdrant collections.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := s.client.GetCollectionsClient().List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list qdrant collections: %w", err)
	}

	collections := resp.GetCollections()
	names := make([]string, len(collections))
	for i, col := range collections {
		names[i] = col.GetName()
	}
	return names, nil
}

// DeleteCollection drops a collection entirely.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrMissingCollectionName
	}

	_, err := s.client.GetCollectionsClient().Delete(ctx, &qdrant.DeleteCollection{
		CollectionName: name,
	})
	if err != nil {
		if stat, ok := status.FromError(err); ok && stat.Code() == codes.NotFound {
			return ErrCollectionNotFound
		}
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	s.logger.InfoContext(ctx, "collection deleted", "name", name)
	return nil
}

// Health reports whether Qdrant answers, used by the readiness probe.
func (s *Store) Health(ctx context.Context) error {
	if _, err := s.client.GetCollectionsClient().List(ctx, &qdrant.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ensureCollection(ctx context.Context, collection string) error {
	exists, err := s.collectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	dimension, err := s.embedder.GetDimension(ctx)
	if err != nil {
		return fmt.Errorf("could not get embedder dimension: %w", err)
	}

	s.logger.InfoContext(ctx, "creating collection",
		"collection", collection, "dimension", dimension)

	_, err = s.client.GetCollectionsClient().Create(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dimension),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create qdrant collection: %w", err)
	}

	// Qdrant needs a moment before the new collection accepts writes.
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Store) collectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.GetCollectionsClient().Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: name,
	})
	if err != nil {
		if stat, ok := status.FromError(err); ok && stat.Code() == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func documentID(doc Document) string {
	if id, exists := doc.Metadata["id"]; exists {
		if idStr, ok := id.(string); ok && idStr != "" {
			return idStr
		}
	}
	return uuid.New().String()
}
