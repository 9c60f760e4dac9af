package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomeworks/tome/internal/rag"
	"github.com/tomeworks/tome/internal/testutil"
)

func postAsk(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
	r.Header.Set("X-API-Key", testAPIKey)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func TestAskStreamsEvents(t *testing.T) {
	engine := &fakeEngine{
		answer: "Paris is the capital [1].",
		citations: []rag.Citation{
			{Index: 1, Source: "geo.md", Title: "geo", Snippet: "Paris is the capital of France.", Score: 0.87},
		},
	}
	srv := newTestServer(t, engine, newFakeStore(), nil)

	w := postAsk(t, srv, `{"query":"capital of France?","conversation_id":"conv-1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := testutil.ParseSSEEvents(t, w.Body.String())

	var answer strings.Builder
	for _, e := range testutil.FindAllEvents(events, EventChunk) {
		var chunk ChunkPayload
		require.NoError(t, json.Unmarshal([]byte(e.Data), &chunk))
		answer.WriteString(chunk.Text)
	}
	assert.Equal(t, "Paris is the capital [1].", answer.String())

	citationsEvent := testutil.FindEvent(events, EventCitations)
	require.NotNil(t, citationsEvent)
	var citations CitationsPayload
	require.NoError(t, json.Unmarshal([]byte(citationsEvent.Data), &citations))
	require.Len(t, citations.Citations, 1)
	assert.Equal(t, "geo.md", citations.Citations[0].Source)
	assert.Equal(t, "Paris is the capital of France.", citations.Citations[0].Snippet)
	assert.Equal(t, float32(0.87), citations.Citations[0].Score)

	doneEvent := testutil.FindEvent(events, EventDone)
	require.NotNil(t, doneEvent)
	var done DonePayload
	require.NoError(t, json.Unmarshal([]byte(doneEvent.Data), &done))
	assert.Equal(t, "Paris is the capital [1].", done.Response)
	assert.Equal(t, "conv-1", done.ConversationID)

	assert.Nil(t, testutil.FindEvent(events, EventError))
}

func TestAskDefaultDatastore(t *testing.T) {
	engine := &fakeEngine{answer: "ok"}
	srv := newTestServer(t, engine, newFakeStore(), nil)

	postAsk(t, srv, `{"query":"q"}`)
	assert.Equal(t, "tome_default", engine.lastReq.Collection)

	postAsk(t, srv, `{"query":"q","datastore_key":"handbook"}`)
	assert.Equal(t, "tome_handbook", engine.lastReq.Collection)
}

func TestAskForwardsHistory(t *testing.T) {
	engine := &fakeEngine{answer: "ok"}
	srv := newTestServer(t, engine, newFakeStore(), nil)

	postAsk(t, srv, `{"query":"q","chat_history":[{"user":"hi","bot":"hello"}]}`)

	require.Len(t, engine.lastReq.History, 1)
	assert.Equal(t, "hi", engine.lastReq.History[0].User)
	assert.Equal(t, "hello", engine.lastReq.History[0].Assistant)
}

func TestAskValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"query":`, "invalid_request"},
		{"missing query", `{}`, "missing_query"},
		{"blank query", `{"query":"   "}`, "missing_query"},
		{"query too long", `{"query":"` + strings.Repeat("x", 401) + `"}`, "query_too_long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{answer: "should not run"}
			srv := newTestServer(t, engine, newFakeStore(), nil)

			w := postAsk(t, srv, tt.body)

			events := testutil.ParseSSEEvents(t, w.Body.String())
			errEvent := testutil.FindEvent(events, EventError)
			require.NotNil(t, errEvent)

			var payload ErrorPayload
			require.NoError(t, json.Unmarshal([]byte(errEvent.Data), &payload))
			assert.Equal(t, tt.code, payload.Code)
			assert.Empty(t, engine.lastReq.Query, "engine must not be invoked")
		})
	}
}

func TestAskGenerationFailure(t *testing.T) {
	engine := &fakeEngine{err: errors.New("model exploded")}
	srv := newTestServer(t, engine, newFakeStore(), nil)

	w := postAsk(t, srv, `{"query":"q"}`)

	events := testutil.ParseSSEEvents(t, w.Body.String())
	errEvent := testutil.FindEvent(events, EventError)
	require.NotNil(t, errEvent)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal([]byte(errEvent.Data), &payload))
	assert.Equal(t, "generation_failed", payload.Code)
	assert.NotContains(t, payload.Message, "exploded", "internal errors must not leak")
}
