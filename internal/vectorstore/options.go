package vectorstore

import (
	"log/slog"
	"strings"
	"time"

	"github.com/tomeworks/tome/internal/embedding"
)

const (
	defaultHost = "localhost"
	defaultPort = 6334

	defaultBatchSize     = 100
	defaultRetryAttempts = 3
	defaultRetryDelay    = time.Second
	defaultMaxRetryDelay = 30 * time.Second
)

type options struct {
	host          string
	port          int
	apiKey        string
	useTLS        bool
	embedder      embedding.Embedder
	logger        *slog.Logger
	batchSize     int
	retryAttempts int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

// Option configures the Qdrant store.
type Option func(*options)

// WithHostAndPort sets the Qdrant gRPC endpoint.
func WithHostAndPort(host string, port int) Option {
	return func(opts *options) {
		if host != "" {
			opts.host = host
		}
		if port > 0 {
			opts.port = port
		}
	}
}

// WithAPIKey sets the API key for Qdrant authentication.
func WithAPIKey(apiKey string) Option {
	return func(opts *options) {
		opts.apiKey = strings.TrimSpace(apiKey)
	}
}

// WithTLS enables TLS for the Qdrant connection.
func WithTLS(useTLS bool) Option {
	return func(opts *options) {
		opts.useTLS = useTLS
	}
}

// WithEmbedder sets the embedder used for documents and queries.
func WithEmbedder(embedder embedding.Embedder) Option {
	return func(opts *options) {
		opts.embedder = embedder
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithBatchSize sets how many points go to Qdrant per upsert.
func WithBatchSize(size int) Option {
	return func(opts *options) {
		if size > 0 {
			opts.batchSize = size
		}
	}
}

func parseOptions(opts ...Option) options {
	o := options{
		host:          defaultHost,
		port:          defaultPort,
		batchSize:     defaultBatchSize,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
		maxRetryDelay: defaultMaxRetryDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
