package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ollama/ollama/api"

	"github.com/tomeworks/tome/internal/ollamaclient"
)

// Ollama embeds text through a local Ollama server.
type Ollama struct {
	client *ollamaclient.Client
	model  string
	logger *slog.Logger

	dimension int
	dimOnce   sync.Once
}

var _ Embedder = (*Ollama)(nil)

// NewOllama creates an Ollama embedding client. logger may be nil.
func NewOllama(client *ollamaclient.Client, model string, logger *slog.Logger) (*Ollama, error) {
	if client == nil {
		return nil, errors.New("ollama: client is required")
	}
	if model == "" {
		return nil, errors.New("ollama: embedding model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Ollama{
		client: client,
		model:  model,
		logger: logger.With("component", "ollama_embedder", "model", model),
	}, nil
}

// EmbedDocuments generates embeddings for a slice of texts in one request.
func (o *Ollama) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to embed documents: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: expected %d embeddings, but got %d",
			len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

// EmbedQuery generates an embedding for a single text query.
func (o *Ollama) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := o.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, errors.New("ollama: embedding is nil or empty")
	}
	return embeddings[0], nil
}

// GetDimension probes the model once with a sample text and caches the result.
func (o *Ollama) GetDimension(ctx context.Context) (int, error) {
	var err error
	o.dimOnce.Do(func() {
		sampleEmbedding, doErr := o.EmbedQuery(ctx, "dimension")
		if doErr != nil {
			err = fmt.Errorf("failed to get dimension by embedding sample text: %w", doErr)
			return
		}
		o.dimension = len(sampleEmbedding)
	})

	if err != nil {
		o.dimOnce = sync.Once{}
		return 0, err
	}

	return o.dimension, nil
}
