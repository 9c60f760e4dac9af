package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"google.golang.org/genai"
)

var (
	ErrNoAPIKey   = errors.New("gemini: API key is required")
	ErrEmbeddings = errors.New("gemini: failed to generate embeddings")
)

// Gemini embeds text through Google's hosted embedding models.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger

	// dimension is cached after the first probe
	dimension int
	dimOnce   sync.Once
}

var _ Embedder = (*Gemini)(nil)

// NewGemini creates a Gemini embedding client. An empty apiKey falls back to
// the GEMINI_API_KEY environment variable. logger may be nil.
func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		return nil, errors.New("gemini: embedding model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  model,
		logger: logger.With("component", "gemini_embedder", "model", model),
	}, nil
}

// EmbedDocuments generates embeddings for a slice of texts.
func (g *Gemini) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	res, err := g.client.Models.EmbedContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrEmbeddings.Error(), err)
	}

	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, but got %d",
			ErrEmbeddings, len(texts), len(res.Embeddings))
	}

	embeddings := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		embeddings[i] = e.Values
	}
	return embeddings, nil
}

// EmbedQuery generates an embedding for a single text query.
func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	content := genai.NewContentFromText(text, genai.RoleUser)
	res, err := g.client.Models.EmbedContent(ctx, g.model, []*genai.Content{content}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s for query: %w", ErrEmbeddings.Error(), err)
	}

	if len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, fmt.Errorf("%w: embedding is nil or empty", ErrEmbeddings)
	}
	return res.Embeddings[0].Values, nil
}

// GetDimension probes the model once with a sample text and caches the result.
func (g *Gemini) GetDimension(ctx context.Context) (int, error) {
	var err error
	g.dimOnce.Do(func() {
		sampleEmbedding, doErr := g.EmbedQuery(ctx, "dimension")
		if doErr != nil {
			err = fmt.Errorf("failed to get dimension by embedding sample text: %w", doErr)
			return
		}
		g.dimension = len(sampleEmbedding)
	})

	if err != nil {
		g.dimOnce = sync.Once{}
		return 0, err
	}

	return g.dimension, nil
}
