package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomeworks/tome/internal/config"
	"github.com/tomeworks/tome/internal/ingest"
	"github.com/tomeworks/tome/internal/log"
)

var ingestDatastore string

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Index documents into the vector store",
	Long: `Index documents into the vector store.

With a directory (or no argument, using the datastore's directory under the
configured data_dir), every supported file under it is synchronized: a
manifest tracks content hashes so unchanged files are skipped on re-runs,
changed files are re-indexed, and deleted files are purged. With a single
file, that file is always re-indexed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return runIngest(cmd.Context(), path)
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDatastore, "datastore", "d", "",
		"datastore to ingest into (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

// ingestRoot resolves what to ingest: an explicit argument wins, otherwise
// the datastore's own directory under data_dir.
func ingestRoot(dataDir, datastore, arg string) string {
	if arg != "" {
		return arg
	}
	return filepath.Join(dataDir, datastore)
}

func runIngest(parent context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	datastore := ingestDatastore
	if datastore == "" {
		datastore = cfg.DefaultDatastore
	}
	path = ingestRoot(cfg.DataDir, datastore, path)

	embedder, err := buildEmbedder(ctx, cfg, logger)
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

	splitter, err := ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("creating splitter: %w", err)
	}
	pipeline, err := ingest.NewPipeline(vectors, splitter, logger)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	collection := cfg.CollectionPrefix + datastore
	logger.Info("starting ingestion", "path", path, "datastore", datastore, "collection", collection)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var stats *ingest.Stats
	if info.IsDir() {
		stats, err = pipeline.IngestDir(ctx, path, datastore, collection)
	} else {
		stats, err = pipeline.IngestFile(ctx, path, datastore, collection)
	}
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", path, err)
	}

	fmt.Printf("Ingestion complete: %d scanned, %d ingested, %d skipped, %d removed, %d chunks in %s\n",
		stats.FilesScanned, stats.FilesIngested, stats.FilesSkipped, stats.FilesRemoved,
		stats.ChunksAdded, stats.Duration.Round(time.Millisecond))
	return nil
}
