package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tomeworks/tome/internal/rag"
)

// SSE event types for ask streaming.
const (
	EventChunk     = "chunk"     // Partial answer text
	EventCitations = "citations" // Sources the answer referenced
	EventDone      = "done"      // Stream completed successfully
	EventError     = "error"     // Error occurred during streaming
)

// AskRequest is the JSON body of POST /api/v1/ask.
type AskRequest struct {
	Query          string     `json:"query"`
	DatastoreKey   string     `json:"datastore_key,omitempty"`
	ChatHistory    []rag.Turn `json:"chat_history,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
}

// ChunkPayload is the SSE data payload for streaming text chunks.
type ChunkPayload struct {
	Text string `json:"text"`
}

// CitationsPayload is the SSE data payload listing the cited sources.
type CitationsPayload struct {
	Citations []rag.Citation `json:"citations"`
}

// DonePayload is the SSE data payload when streaming completes successfully.
type DonePayload struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ErrorPayload is the SSE data payload when an error occurs.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// askHandler streams grounded answers over SSE.
type askHandler struct {
	engine           Asker
	logger           *slog.Logger
	maxQueryLength   int
	defaultDatastore string
	collectionPrefix string
}

// ask handles POST /api/v1/ask.
// It retrieves context for the query and streams the answer as SSE events.
func (h *askHandler) ask(w http.ResponseWriter, r *http.Request) {
	// 1. Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// 2. Verify Flusher support
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// 3. Parse and validate input
	var input AskRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024) // Limit request size to 1MB
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = writeEvent(w, flusher, EventError, ErrorPayload{
			Code:    "invalid_request",
			Message: "invalid request body",
		})
		return
	}

	query := strings.TrimSpace(input.Query)
	if query == "" {
		_ = writeEvent(w, flusher, EventError, ErrorPayload{Code: "missing_query", Message: "query is required"})
		return
	}
	if h.maxQueryLength > 0 && len(query) > h.maxQueryLength {
		_ = writeEvent(w, flusher, EventError, ErrorPayload{
			Code:    "query_too_long",
			Message: fmt.Sprintf("query exceeds maximum length of %d characters", h.maxQueryLength),
		})
		return
	}

	datastore := input.DatastoreKey
	if datastore == "" {
		datastore = h.defaultDatastore
	}

	ctx := r.Context()
	h.logger.Debug("SSE stream started", "datastore", datastore, "query_len", len(query))

	answer, err := h.engine.Ask(ctx, rag.Request{
		Query:      query,
		Collection: h.collectionPrefix + datastore,
		History:    input.ChatHistory,
	}, rag.Handler{
		OnChunk: func(chunk string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeEvent(w, flusher, EventChunk, ChunkPayload{Text: chunk})
		},
		OnCitations: func(citations []rag.Citation) error {
			if len(citations) == 0 {
				return nil
			}
			return writeEvent(w, flusher, EventCitations, CitationsPayload{Citations: citations})
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected", "datastore", datastore)
			return
		}
		h.logger.Error("answer generation failed", "error", err, "datastore", datastore)
		_ = writeEvent(w, flusher, EventError, ErrorPayload{
			Code:    "generation_failed",
			Message: "failed to generate an answer",
		})
		return
	}

	_ = writeEvent(w, flusher, EventDone, DonePayload{
		Response:       answer.Text,
		ConversationID: input.ConversationID,
	})

	h.logger.Info("SSE stream completed",
		"datastore", datastore,
		"citations", len(answer.Citations),
	)
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
