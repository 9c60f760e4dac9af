package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomeworks/tome/internal/api"
	"github.com/tomeworks/tome/internal/config"
	"github.com/tomeworks/tome/internal/database"
	"github.com/tomeworks/tome/internal/history"
	"github.com/tomeworks/tome/internal/log"
	"github.com/tomeworks/tome/internal/rag"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server chat clients connect to.

Serves the SSE ask endpoint, conversation history CRUD, client configuration,
and health probes. Requires TOME_API_KEY so clients can authenticate.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes all backends and starts the HTTP API server.
func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	logger.Info("starting HTTP API server", "version", Version, "provider", cfg.Provider)

	db, err := database.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("closing history database", "error", closeErr)
		}
	}()
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrating history database: %w", err)
	}

	embedder, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	model, err := buildModel(ctx, cfg, logger)
	if err != nil {
		return err
	}
	vectors, err := buildVectorStore(cfg, embedder, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := vectors.Close(); closeErr != nil {
			logger.Warn("closing vector store", "error", closeErr)
		}
	}()

	engine, err := rag.NewEngine(vectors, model, rag.Config{
		TopK:           cfg.TopK,
		ScoreThreshold: cfg.ScoreThreshold,
		Temperature:    float64(cfg.Temperature),
		MaxTokens:      cfg.MaxTokens,
		MaxHistory:     cfg.MaxHistoryMessages,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating answer engine: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:  logger,
		Config:  cfg,
		Engine:  engine,
		History: history.New(db, logger),
		Vectors: vectors,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
