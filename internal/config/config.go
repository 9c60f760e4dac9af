// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.tome/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, temperature, max tokens, embedder model
//   - Qdrant: vector store connection (host, port, API key, TLS)
//   - Storage: SQLite path for conversation history
//   - API: listen address, client API key, CORS, rate limiting
//   - Retrieval: top-k, score threshold, history cap
//   - Ingest: data directory, chunking parameters
//   - App: presentation sections relayed to clients via GET /api/v1/config
//
// Security: sensitive values (API keys) are masked in MarshalJSON.
// Validation: range checks with sentinel errors, checked with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidQdrantHost indicates the Qdrant host is empty.
	ErrInvalidQdrantHost = errors.New("invalid Qdrant host")

	// ErrInvalidQdrantPort indicates the Qdrant port is out of range.
	ErrInvalidQdrantPort = errors.New("invalid Qdrant port")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidScoreThreshold indicates the similarity cutoff is out of range.
	ErrInvalidScoreThreshold = errors.New("invalid score threshold")

	// ErrInvalidMaxHistory indicates the prompt history cap is negative.
	ErrInvalidMaxHistory = errors.New("invalid max history messages")

	// ErrInvalidRateLimit indicates the request rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidMaxQueryLength indicates the query length limit is out of range.
	ErrInvalidMaxQueryLength = errors.New("invalid max query length")

	// ErrMissingServeAPIKey indicates serve mode was started without a client API key.
	ErrMissingServeAPIKey = errors.New("missing serve API key")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultGeminiModel is the default chat model for the Gemini provider.
	DefaultGeminiModel = "gemini-2.5-flash"

	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultMaxHistoryMessages caps the chat history included in a prompt.
	DefaultMaxHistoryMessages = 10

	// DefaultMaxQueryLength caps the /ask query length in bytes.
	DefaultMaxQueryLength = 1000
)

// AppSection is the presentation metadata shown by chat clients.
// It is relayed verbatim by GET /api/v1/config.
type AppSection struct {
	Name           string `mapstructure:"name" json:"name"`
	Description    string `mapstructure:"description" json:"description"`
	WelcomeTitle   string `mapstructure:"welcome_title" json:"welcome_title"`
	WelcomeMessage string `mapstructure:"welcome_message" json:"welcome_message"`
	Company        string `mapstructure:"company" json:"company"`
}

// FeaturesSection toggles client-side features.
type FeaturesSection struct {
	SettingsEnabled               bool `mapstructure:"settings_enabled" json:"settings_enabled"`
	APIKeyRequired                bool `mapstructure:"api_key_required" json:"api_key_required"`
	DatastoreSelectionEnabled     bool `mapstructure:"datastore_selection_enabled" json:"datastore_selection_enabled"`
	ChatHistoryEnabled            bool `mapstructure:"chat_history_enabled" json:"chat_history_enabled"`
	ConversationManagementEnabled bool `mapstructure:"conversation_management_enabled" json:"conversation_management_enabled"`
	ThemeSelectionEnabled         bool `mapstructure:"theme_selection_enabled" json:"theme_selection_enabled"`
}

// DefaultsSection holds client defaults.
type DefaultsSection struct {
	DatastoreKey     string `mapstructure:"datastore_key" json:"datastore_key"`
	Theme            string `mapstructure:"theme" json:"theme"`
	MaxConversations int    `mapstructure:"max_conversations" json:"max_conversations"`
	MaxChatHistory   int    `mapstructure:"max_chat_history" json:"max_chat_history"`
}

// UISection holds client UI preferences.
type UISection struct {
	SidebarCollapsible         bool `mapstructure:"sidebar_collapsible" json:"sidebar_collapsible"`
	ShowConversationTimestamps bool `mapstructure:"show_conversation_timestamps" json:"show_conversation_timestamps"`
	ShowMessageTimestamps      bool `mapstructure:"show_message_timestamps" json:"show_message_timestamps"`
	AutoScroll                 bool `mapstructure:"auto_scroll" json:"auto_scroll"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"` // "gemini" (default) or "ollama"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Qdrant vector store
	QdrantHost       string `mapstructure:"qdrant_host" json:"qdrant_host"`
	QdrantPort       int    `mapstructure:"qdrant_port" json:"qdrant_port"`
	QdrantAPIKey     string `mapstructure:"qdrant_api_key" json:"qdrant_api_key"` // SENSITIVE: masked in MarshalJSON
	QdrantUseTLS     bool   `mapstructure:"qdrant_use_tls" json:"qdrant_use_tls"`
	CollectionPrefix string `mapstructure:"collection_prefix" json:"collection_prefix"`

	// Conversation history storage
	SQLitePath string `mapstructure:"sqlite_path" json:"sqlite_path"`

	// API server
	Addr           string   `mapstructure:"addr" json:"addr"`
	APIKey         string   `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	CORSOrigins    []string `mapstructure:"cors_origins" json:"cors_origins"`
	MaxQueryLength int      `mapstructure:"max_query_length" json:"max_query_length"`
	RateLimit      float64  `mapstructure:"rate_limit" json:"rate_limit"` // Tokens refilled per second, per client IP
	RateBurst      int      `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy     bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)

	// Retrieval
	TopK               int     `mapstructure:"top_k" json:"top_k"`
	ScoreThreshold     float32 `mapstructure:"score_threshold" json:"score_threshold"`
	MaxHistoryMessages int     `mapstructure:"max_history_messages" json:"max_history_messages"`

	// Ingestion
	DataDir          string `mapstructure:"data_dir" json:"data_dir"`
	ChunkSize        int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	DefaultDatastore string `mapstructure:"default_datastore" json:"default_datastore"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Client-facing sections (GET /api/v1/config)
	App      AppSection      `mapstructure:"app" json:"app"`
	Features FeaturesSection `mapstructure:"features" json:"features"`
	Defaults DefaultsSection `mapstructure:"defaults" json:"defaults"`
	UI       UISection       `mapstructure:"ui" json:"ui"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".tome")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing configuration file is not an error, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Fail fast on invalid configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", DefaultGeminiModel)
	v.SetDefault("temperature", 0.5)
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// Ollama defaults
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Qdrant defaults
	v.SetDefault("qdrant_host", "localhost")
	v.SetDefault("qdrant_port", 6334)
	v.SetDefault("qdrant_use_tls", false)
	v.SetDefault("collection_prefix", "tome_")

	// Storage defaults
	v.SetDefault("sqlite_path", "data/history.db")

	// API defaults
	v.SetDefault("addr", "127.0.0.1:8000")
	v.SetDefault("cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("max_query_length", DefaultMaxQueryLength)
	v.SetDefault("rate_limit", 1.0)
	v.SetDefault("rate_burst", 60)
	v.SetDefault("trust_proxy", false)

	// Retrieval defaults
	v.SetDefault("top_k", 5)
	v.SetDefault("score_threshold", 0.0)
	v.SetDefault("max_history_messages", DefaultMaxHistoryMessages)

	// Ingestion defaults
	v.SetDefault("data_dir", "data")
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 100)
	v.SetDefault("default_datastore", "default")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	// Client-facing sections
	v.SetDefault("app.name", "Tome Assistant")
	v.SetDefault("app.description", "Ask questions about your documents")
	v.SetDefault("app.welcome_title", "Welcome to Tome")
	v.SetDefault("app.welcome_message", "Ask me anything about the indexed documents.")
	v.SetDefault("features.settings_enabled", true)
	v.SetDefault("features.api_key_required", true)
	v.SetDefault("features.datastore_selection_enabled", false)
	v.SetDefault("features.chat_history_enabled", true)
	v.SetDefault("features.conversation_management_enabled", true)
	v.SetDefault("features.theme_selection_enabled", true)
	v.SetDefault("defaults.datastore_key", "default")
	v.SetDefault("defaults.theme", "light")
	v.SetDefault("defaults.max_conversations", 50)
	v.SetDefault("defaults.max_chat_history", 10)
	v.SetDefault("ui.sidebar_collapsible", true)
	v.SetDefault("ui.show_conversation_timestamps", true)
	v.SetDefault("ui.show_message_timestamps", false)
	v.SetDefault("ui.auto_scroll", true)
}

// bindEnvVariables binds environment variables explicitly.
// Secrets only enter via the environment:
//   - GEMINI_API_KEY is read directly by the genai client, validated in Validate()
//   - QDRANT_API_KEY authenticates against a managed Qdrant instance
//   - TOME_API_KEY is the key clients must present in X-API-Key
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("api_key", "TOME_API_KEY")
	mustBind("qdrant_api_key", "QDRANT_API_KEY")
	mustBind("qdrant_host", "TOME_QDRANT_HOST")
	mustBind("cors_origins", "TOME_CORS_ORIGINS")
	mustBind("trust_proxy", "TOME_TRUST_PROXY")
	mustBind("provider", "TOME_PROVIDER")
	mustBind("model_name", "TOME_MODEL_NAME")
	mustBind("ollama_host", "TOME_OLLAMA_HOST")
	mustBind("sqlite_path", "TOME_SQLITE_PATH")
	mustBind("addr", "TOME_ADDR")
	mustBind("log_level", "TOME_LOG_LEVEL")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "********"

// MarshalJSON masks sensitive fields so a Config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // drop methods to avoid recursion
	masked := alias(c)
	if masked.APIKey != "" {
		masked.APIKey = maskedValue
	}
	if masked.QdrantAPIKey != "" {
		masked.QdrantAPIKey = maskedValue
	}
	return json.Marshal(masked)
}

// Sections returns the client-facing configuration sections served by
// GET /api/v1/config.
func (c *Config) Sections() map[string]any {
	return map[string]any{
		"app":      c.App,
		"features": c.Features,
		"defaults": c.Defaults,
		"ui":       c.UI,
	}
}
