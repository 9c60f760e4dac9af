package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tomeworks/tome/internal/config"
	"github.com/tomeworks/tome/internal/embedding"
	"github.com/tomeworks/tome/internal/llm"
	"github.com/tomeworks/tome/internal/ollamaclient"
	"github.com/tomeworks/tome/internal/vectorstore"
)

// buildEmbedder creates the batching embedder for the configured provider.
func buildEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (embedding.Embedder, error) {
	var (
		client embedding.Embedder
		err    error
	)

	switch cfg.Provider {
	case config.ProviderGemini:
		client, err = embedding.NewGemini(ctx, os.Getenv("GEMINI_API_KEY"), cfg.EmbedderModel, logger)
	case config.ProviderOllama:
		var oc *ollamaclient.Client
		oc, err = ollamaclient.NewClient(cfg.OllamaHost, nil, logger)
		if err == nil {
			client, err = embedding.NewOllama(oc, cfg.EmbedderModel, logger)
		}
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s embedder: %w", cfg.Provider, err)
	}

	embedder, err := embedding.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("wrapping embedder: %w", err)
	}
	return embedder, nil
}

// buildModel creates the chat model for the configured provider.
func buildModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Model, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		model, err := llm.NewGemini(ctx, os.Getenv("GEMINI_API_KEY"), cfg.ModelName, logger)
		if err != nil {
			return nil, fmt.Errorf("creating Gemini model: %w", err)
		}
		return model, nil
	case config.ProviderOllama:
		oc, err := ollamaclient.NewClient(cfg.OllamaHost, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("creating Ollama client: %w", err)
		}
		model, err := llm.NewOllama(oc, cfg.ModelName, logger)
		if err != nil {
			return nil, fmt.Errorf("creating Ollama model: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}
}

// buildVectorStore connects to Qdrant with the configured embedder.
func buildVectorStore(cfg *config.Config, embedder embedding.Embedder, logger *slog.Logger) (*vectorstore.Store, error) {
	store, err := vectorstore.New(
		vectorstore.WithHostAndPort(cfg.QdrantHost, cfg.QdrantPort),
		vectorstore.WithAPIKey(cfg.QdrantAPIKey),
		vectorstore.WithTLS(cfg.QdrantUseTLS),
		vectorstore.WithEmbedder(embedder),
		vectorstore.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to Qdrant: %w", err)
	}
	return store, nil
}
