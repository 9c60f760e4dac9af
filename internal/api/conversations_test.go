package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomeworks/tome/internal/history"
)

func doJSON(t *testing.T, srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("X-API-Key", testAPIKey)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func TestConversationLifecycle(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, newFakeStore(), nil)

	// Create
	w := doJSON(t, srv, http.MethodPost, "/api/v1/conversations",
		`{"id":"conv-1","title":"First chat","messages":[
			{"id":"m1","role":"user","content":"hi"},
			{"id":"m2","role":"assistant","content":"hello"}]}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var saved map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&saved))
	assert.Equal(t, "conv-1", saved["id"])

	// Get
	w = doJSON(t, srv, http.MethodGet, "/api/v1/conversations/conv-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var conv history.Conversation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&conv))
	assert.Equal(t, "First chat", conv.Title)
	require.Len(t, conv.Messages, 2)

	// Update via PUT: path ID wins over body ID
	w = doJSON(t, srv, http.MethodPut, "/api/v1/conversations/conv-1",
		`{"id":"ignored","title":"Renamed","messages":[]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/conversations/conv-1", "", nil)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&conv))
	assert.Equal(t, "Renamed", conv.Title)

	// List
	w = doJSON(t, srv, http.MethodGet, "/api/v1/conversations", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Conversations []history.Conversation `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listed))
	assert.Len(t, listed.Conversations, 1)

	// Delete
	w = doJSON(t, srv, http.MethodDelete, "/api/v1/conversations/conv-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/conversations/conv-1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationGeneratedID(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, newFakeStore(), nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/conversations",
		`{"title":"untitled","messages":[]}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var saved map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&saved))
	assert.NotEmpty(t, saved["id"])
}

func TestConversationInvalidRole(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, newFakeStore(), nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/conversations",
		`{"id":"c","title":"t","messages":[{"id":"m","role":"robot","content":"x"}]}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_role", decodeError(t, w).Error)
}

func TestConversationUserIsolation(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, newFakeStore(), nil)

	alice := map[string]string{"X-User-Identity": "alice"}
	bob := map[string]string{"X-User-Identity": "bob"}

	w := doJSON(t, srv, http.MethodPost, "/api/v1/conversations",
		`{"id":"conv-a","title":"private","messages":[]}`, alice)
	require.Equal(t, http.StatusCreated, w.Code)

	// Bob cannot see Alice's conversation
	w = doJSON(t, srv, http.MethodGet, "/api/v1/conversations/conv-a", "", bob)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Bob's clear does not touch Alice's data
	w = doJSON(t, srv, http.MethodDelete, "/api/v1/conversations", "", bob)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/conversations/conv-a", "", alice)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConversationClear(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, newFakeStore(), nil)

	for _, id := range []string{"c1", "c2"} {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/conversations",
			`{"id":"`+id+`","title":"t","messages":[]}`, nil)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, srv, http.MethodDelete, "/api/v1/conversations", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/conversations", "", nil)
	var listed struct {
		Conversations []history.Conversation `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listed))
	assert.Empty(t, listed.Conversations)
}

func TestConversationListInvalidLimit(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, newFakeStore(), nil)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/conversations?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/conversations?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
