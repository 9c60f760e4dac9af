// Package embedding turns text into vectors for similarity search.
//
// Provider clients (Gemini, Ollama) implement the Embedder interface; the
// batching wrapper returned by NewEmbedder adds text preprocessing and
// concurrent batch fan-out on top of any provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Embedder converts texts into embedding vectors.
type Embedder interface {
	// EmbedDocuments embeds a slice of document chunks.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// GetDimension reports the vector size the provider produces.
	GetDimension(ctx context.Context) (int, error)
}

// ErrEmptyText is returned when a query to embed is blank.
var ErrEmptyText = errors.New("text cannot be empty")

type options struct {
	StripNewLines bool
	BatchSize     int
}

// Option configures the batching wrapper.
type Option func(*options)

// WithBatchSize sets how many texts go to the provider per request.
func WithBatchSize(size int) Option {
	return func(opts *options) {
		opts.BatchSize = size
	}
}

// WithStripNewLines controls newline replacement before embedding.
func WithStripNewLines(strip bool) Option {
	return func(opts *options) {
		opts.StripNewLines = strip
	}
}

type wrapper struct {
	client Embedder
	opts   options
}

// NewEmbedder wraps a provider client with preprocessing and batching.
func NewEmbedder(client Embedder, opts ...Option) (Embedder, error) {
	embedderOpts := options{
		StripNewLines: true,
		BatchSize:     32,
	}
	for _, opt := range opts {
		opt(&embedderOpts)
	}
	if embedderOpts.BatchSize <= 0 {
		embedderOpts.BatchSize = 32
	}

	if _, ok := client.(*wrapper); ok {
		return nil, errors.New("cannot wrap an already-wrapped embedder")
	}

	return &wrapper{
		client: client,
		opts:   embedderOpts,
	}, nil
}

func (e *wrapper) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return e.client.EmbedQuery(ctx, e.preprocessText(text))
}

func (e *wrapper) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	processedTexts := make([]string, len(texts))
	for i, text := range texts {
		processedTexts[i] = e.preprocessText(text)
	}

	batchedTexts := batchTexts(processedTexts, e.opts.BatchSize)
	batchResults := make([][][]float32, len(batchedTexts))
	errCh := make(chan error, len(batchedTexts))

	const maxConcurrent = 8
	semaphore := make(chan struct{}, maxConcurrent)

	var wg sync.WaitGroup
	for i, batch := range batchedTexts {
		wg.Add(1)
		go func(i int, batch []string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				return
			}

			embeddings, err := e.client.EmbedDocuments(ctx, batch)
			if err != nil {
				errCh <- fmt.Errorf("error embedding batch %d: %w", i, err)
				return
			}
			batchResults[i] = embeddings
		}(i, batch)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	allEmbeddings := make([][]float32, 0, len(texts))
	for _, batch := range batchResults {
		allEmbeddings = append(allEmbeddings, batch...)
	}

	return allEmbeddings, nil
}

func (e *wrapper) GetDimension(ctx context.Context) (int, error) {
	return e.client.GetDimension(ctx)
}

func (e *wrapper) preprocessText(text string) string {
	if e.opts.StripNewLines {
		return strings.ReplaceAll(text, "\n", " ")
	}
	return text
}

func batchTexts(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		return [][]string{texts}
	}

	numBatches := (len(texts) + batchSize - 1) / batchSize
	batches := make([][]string, 0, numBatches)

	for i := 0; i < len(texts); i += batchSize {
		end := min(i+batchSize, len(texts))
		batches = append(batches, texts[i:end])
	}

	return batches
}
