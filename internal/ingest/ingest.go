// Package ingest loads source documents from disk, chunks them, and writes
// the chunks into the vector store.
//
// A content-hash manifest per datastore makes ingestion incremental: files
// whose hash is unchanged are skipped, changed files have their old chunks
// deleted and are re-ingested, and files that disappeared from disk have
// their chunks removed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tomeworks/tome/internal/vectorstore"
)

// Vectors is the slice of the vector store the pipeline writes through.
type Vectors interface {
	AddDocuments(ctx context.Context, collection string, docs []vectorstore.Document) ([]string, error)
	DeleteByFilter(ctx context.Context, collection string, filters map[string]any) error
}

// Stats summarizes one pipeline run.
type Stats struct {
	FilesScanned  int
	FilesIngested int
	FilesSkipped  int
	FilesRemoved  int
	ChunksAdded   int
	Duration      time.Duration
}

// Pipeline ingests a directory of documents into one collection.
type Pipeline struct {
	vectors  Vectors
	splitter *Splitter
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline. logger may be nil.
func NewPipeline(vectors Vectors, splitter *Splitter, logger *slog.Logger) (*Pipeline, error) {
	if vectors == nil {
		return nil, errors.New("ingest: vector store is required")
	}
	if splitter == nil {
		return nil, errors.New("ingest: splitter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		vectors:  vectors,
		splitter: splitter,
		logger:   logger,
	}, nil
}

// IngestDir synchronizes every supported file under dir into collection.
// datastore is recorded in each chunk's metadata so queries can be scoped.
func (p *Pipeline) IngestDir(ctx context.Context, dir, datastore, collection string) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	m, err := loadManifest(dir)
	if err != nil {
		return nil, err
	}

	files, err := listSupportedFiles(dir)
	if err != nil {
		return nil, err
	}
	stats.FilesScanned = len(files)

	seen := make(map[string]bool, len(files))
	for _, relPath := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[relPath] = true

		hash, err := hashFile(filepath.Join(dir, relPath))
		if err != nil {
			return nil, err
		}

		if m[relPath] == hash {
			stats.FilesSkipped++
			continue
		}

		// Changed file: drop its old chunks before re-adding.
		if m[relPath] != "" {
			if err := p.deleteSource(ctx, collection, relPath); err != nil {
				return nil, err
			}
		}

		added, err := p.ingestFile(ctx, dir, relPath, datastore, collection)
		if err != nil {
			return nil, fmt.Errorf("failed to ingest %s: %w", relPath, err)
		}

		m[relPath] = hash
		stats.FilesIngested++
		stats.ChunksAdded += added
	}

	// Files present in the manifest but gone from disk.
	for relPath := range m {
		if seen[relPath] {
			continue
		}
		if err := p.deleteSource(ctx, collection, relPath); err != nil {
			return nil, err
		}
		delete(m, relPath)
		stats.FilesRemoved++
	}

	if err := m.save(dir); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	p.logger.InfoContext(ctx, "ingestion completed",
		"datastore", datastore,
		"scanned", stats.FilesScanned,
		"ingested", stats.FilesIngested,
		"skipped", stats.FilesSkipped,
		"removed", stats.FilesRemoved,
		"chunks", stats.ChunksAdded,
		"duration", stats.Duration,
	)
	return stats, nil
}

// IngestFile ingests a single file into collection, replacing any chunks
// previously stored for it. The manifest is not consulted, so the file is
// always (re)indexed.
func (p *Pipeline) IngestFile(ctx context.Context, path, datastore, collection string) (*Stats, error) {
	start := time.Now()

	relPath := filepath.Base(path)
	if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	if err := p.deleteSource(ctx, collection, relPath); err != nil {
		return nil, err
	}
	added, err := p.ingestFile(ctx, filepath.Dir(path), relPath, datastore, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	return &Stats{
		FilesScanned:  1,
		FilesIngested: 1,
		ChunksAdded:   added,
		Duration:      time.Since(start),
	}, nil
}

func (p *Pipeline) ingestFile(ctx context.Context, dir, relPath, datastore, collection string) (int, error) {
	sections, err := loadFile(filepath.Join(dir, relPath))
	if err != nil {
		return 0, err
	}
	if len(sections) == 0 {
		p.logger.WarnContext(ctx, "file yielded no content", "source", relPath)
		return 0, nil
	}

	filename := filepath.Base(relPath)
	extension := strings.ToLower(filepath.Ext(relPath))

	var docs []vectorstore.Document
	chunkIndex := 0
	for _, sec := range sections {
		chunks := []string{sec.text}
		if !sec.noSplit {
			chunks = p.splitter.SplitText(sec.text)
		}

		title := sec.title
		if title == "" {
			title = strings.TrimSuffix(filename, extension)
		}

		for _, chunk := range chunks {
			metadata := map[string]any{
				"source":         relPath,
				"title":          title,
				"filename":       filename,
				"file_extension": extension,
				"chunk_index":    chunkIndex,
				"datastore":      datastore,
			}
			if sec.page > 0 {
				metadata["page"] = sec.page
			}
			docs = append(docs, vectorstore.Document{PageContent: chunk, Metadata: metadata})
			chunkIndex++
		}
	}

	if _, err := p.vectors.AddDocuments(ctx, collection, docs); err != nil {
		return 0, err
	}

	p.logger.DebugContext(ctx, "file ingested",
		"source", relPath, "sections", len(sections), "chunks", len(docs))
	return len(docs), nil
}

func (p *Pipeline) deleteSource(ctx context.Context, collection, relPath string) error {
	err := p.vectors.DeleteByFilter(ctx, collection, map[string]any{"source": relPath})
	// A missing collection means there is nothing to delete.
	if err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return fmt.Errorf("failed to delete stale chunks for %s: %w", relPath, err)
	}
	return nil
}

func listSupportedFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, relPath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
