// Package vectorstore persists embedded document chunks in Qdrant and serves
// similarity search over them. Each datastore maps to its own Qdrant
// collection, so every operation takes an explicit collection name.
package vectorstore

import (
	"errors"
)

// Document is one stored chunk with its payload metadata.
type Document struct {
	PageContent string
	Metadata    map[string]any
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document Document
	Score    float32
}

var (
	ErrMissingEmbedder       = errors.New("qdrant: embedder is required but not provided")
	ErrMissingCollectionName = errors.New("qdrant: collection name is required")
	ErrInvalidLimit          = errors.New("qdrant: search limit must be positive")
	ErrCollectionNotFound    = errors.New("qdrant: collection not found")
	ErrEmptyFilter           = errors.New("qdrant: cannot delete with an empty filter")
)
