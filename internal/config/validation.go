package config

import (
	"fmt"
	"net/url"
	"os"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 1. Provider validation
	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
		if _, err := url.Parse(c.OllamaHost); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidOllamaHost, c.OllamaHost, err)
		}
	default:
		return fmt.Errorf("%w: %q, must be %q or %q",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	// 2. Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidProvider)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidProvider)
	}

	// Temperature range: 0.0 (deterministic) to 2.0
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// 3. Qdrant configuration
	if c.QdrantHost == "" {
		return fmt.Errorf("%w: qdrant_host cannot be empty", ErrInvalidQdrantHost)
	}
	if c.QdrantPort < 1 || c.QdrantPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidQdrantPort, c.QdrantPort)
	}

	// 4. Retrieval configuration
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score_threshold must be between 0 and 1, got %.2f", ErrInvalidScoreThreshold, c.ScoreThreshold)
	}
	if c.MaxHistoryMessages < 0 {
		return fmt.Errorf("%w: max_history_messages cannot be negative, got %d", ErrInvalidMaxHistory, c.MaxHistoryMessages)
	}

	// 5. Ingestion configuration
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be non-negative and smaller than chunk_size (%d)",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	// 6. API configuration
	if c.MaxQueryLength < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidMaxQueryLength, c.MaxQueryLength)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit cannot be negative, got %.2f", ErrInvalidRateLimit, c.RateLimit)
	}

	return nil
}

// ValidateServe runs the extra checks required before starting the HTTP API.
// The client API key is only mandatory in serve mode; ingestion and local
// commands work without one.
func (c *Config) ValidateServe() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: set TOME_API_KEY or api_key in config.yaml", ErrMissingServeAPIKey)
	}
	return nil
}
