// Package rag answers questions over ingested documents: retrieve similar
// chunks, build a grounded prompt, stream the model's answer, and extract
// the source citations it used.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tomeworks/tome/internal/llm"
	"github.com/tomeworks/tome/internal/vectorstore"
)

// NoDocumentsReply is streamed verbatim when retrieval finds nothing.
const NoDocumentsReply = "No relevant documents found."

// Retriever is the slice of the vector store the engine reads through.
type Retriever interface {
	SimilaritySearchWithThreshold(ctx context.Context, collection, query string, limit int, scoreThreshold float32) ([]vectorstore.SearchResult, error)
}

// Turn is one past user/assistant exchange supplied by the client.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"bot"`
}

// Request is one question against one collection.
type Request struct {
	Query      string
	Collection string
	History    []Turn
}

// Citation identifies a retrieved source the answer referenced. Snippet
// carries the opening of the cited chunk so clients can preview it, Score the
// similarity the chunk was retrieved with.
type Citation struct {
	Index    int     `json:"index"`
	Source   string  `json:"source"`
	Title    string  `json:"title,omitempty"`
	Filename string  `json:"filename,omitempty"`
	Page     int64   `json:"page,omitempty"`
	Snippet  string  `json:"snippet,omitempty"`
	Score    float32 `json:"score,omitempty"`
}

// Answer is the completed result of one Ask call.
type Answer struct {
	Text      string
	Citations []Citation
	Sources   []vectorstore.SearchResult
}

// Handler receives streaming output while an answer is generated. Either
// callback may be nil. Returning an error aborts the generation.
type Handler struct {
	OnChunk     func(chunk string) error
	OnCitations func(citations []Citation) error
}

// Config bounds retrieval and generation.
type Config struct {
	TopK           int
	ScoreThreshold float32
	Temperature    float64
	MaxTokens      int
	MaxHistory     int
}

// Engine wires retrieval and generation together.
type Engine struct {
	retriever Retriever
	model     llm.Model
	config    Config
	logger    *slog.Logger
}

// NewEngine creates an answer engine. logger may be nil.
func NewEngine(retriever Retriever, model llm.Model, config Config, logger *slog.Logger) (*Engine, error) {
	if retriever == nil {
		return nil, errors.New("rag: retriever is required")
	}
	if model == nil {
		return nil, errors.New("rag: model is required")
	}
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		retriever: retriever,
		model:     model,
		config:    config,
		logger:    logger,
	}, nil
}

// Ask retrieves context for the query, streams the model's answer through
// handler, and returns the finished answer with its citations.
func (e *Engine) Ask(ctx context.Context, req Request, handler Handler) (*Answer, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("rag: query cannot be empty")
	}

	results, err := e.retriever.SimilaritySearchWithThreshold(
		ctx, req.Collection, query, e.config.TopK, e.config.ScoreThreshold)
	if err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	if len(results) == 0 {
		e.logger.WarnContext(ctx, "no relevant documents found",
			"collection", req.Collection)
		if handler.OnChunk != nil {
			if err := handler.OnChunk(NoDocumentsReply); err != nil {
				return nil, err
			}
		}
		return &Answer{Text: NoDocumentsReply}, nil
	}

	history := req.History
	if e.config.MaxHistory > 0 && len(history) > e.config.MaxHistory {
		history = history[len(history)-e.config.MaxHistory:]
	}

	prompt := buildPrompt(query, results, history)

	callOpts := []llm.CallOption{
		llm.WithTemperature(e.config.Temperature),
	}
	if e.config.MaxTokens > 0 {
		callOpts = append(callOpts, llm.WithMaxTokens(e.config.MaxTokens))
	}
	if handler.OnChunk != nil {
		callOpts = append(callOpts, llm.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return handler.OnChunk(string(chunk))
		}))
	}

	resp, err := e.model.GenerateContent(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}}, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	citations := e.citationsFor(resp.Content, results)
	if handler.OnCitations != nil {
		if err := handler.OnCitations(citations); err != nil {
			return nil, err
		}
	}

	e.logger.InfoContext(ctx, "answer generated",
		"collection", req.Collection,
		"sources", len(results),
		"citations", len(citations),
		"tokens", resp.TotalTokens,
		"duration", resp.Duration,
	)

	return &Answer{
		Text:      resp.Content,
		Citations: citations,
		Sources:   results,
	}, nil
}

// citationsFor maps the marker indexes found in the answer back onto the
// retrieved sources. An answer without markers cites every source, since the
// whole context was available to the model.
func (e *Engine) citationsFor(answer string, results []vectorstore.SearchResult) []Citation {
	indexes := ExtractCitationIndexes(answer, len(results))
	if len(indexes) == 0 {
		indexes = make([]int, len(results))
		for i := range results {
			indexes[i] = i + 1
		}
	}

	citations := make([]Citation, 0, len(indexes))
	for _, idx := range indexes {
		result := results[idx-1]
		doc := result.Document
		citation := Citation{
			Index:    idx,
			Source:   metadataString(doc.Metadata, "source"),
			Title:    metadataString(doc.Metadata, "title"),
			Filename: metadataString(doc.Metadata, "filename"),
			Snippet:  snippet(doc.PageContent),
			Score:    result.Score,
		}
		if page, ok := doc.Metadata["page"].(int64); ok {
			citation.Page = page
		}
		citations = append(citations, citation)
	}
	return citations
}

// maxSnippetLen bounds the chunk preview carried in a citation.
const maxSnippetLen = 200

// snippet returns the opening of the chunk, cut on a rune boundary.
func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxSnippetLen {
		return text
	}
	cut := maxSnippetLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return strings.TrimSpace(text[:cut]) + "..."
}

func metadataString(metadata map[string]any, key string) string {
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}
