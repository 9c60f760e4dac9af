package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/tomeworks/tome/internal/history"
)

// conversationHandler serves the conversation history CRUD endpoints.
// Every request is scoped to the user resolved from its credentials.
type conversationHandler struct {
	store  ConversationStore
	logger *slog.Logger
}

// resolveUser maps the request credentials onto a stable user ID, creating
// the user on first contact. The API key middleware has already validated
// X-API-Key, so a resolution failure here is a storage error.
func (h *conversationHandler) resolveUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.store.GetOrCreateUser(r.Context(),
		r.Header.Get("X-API-Key"), r.Header.Get("X-User-Identity"))
	if err != nil {
		h.logger.Error("failed to resolve user", "error", err)
		WriteError(w, http.StatusInternalServerError, "user_resolution_failed", "failed to resolve user", h.logger)
		return "", false
	}
	return userID, true
}

// list handles GET /api/v1/conversations.
// Returns the user's conversations, most recently updated first.
func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", h.logger)
			return
		}
		limit = parsed
	}

	conversations, err := h.store.ListConversations(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err, "user", userID)
		WriteError(w, http.StatusInternalServerError, "list_failed", "failed to list conversations", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations}, h.logger)
}

// save handles POST /api/v1/conversations.
// Creates a conversation, or replaces it entirely when the ID already exists.
func (h *conversationHandler) save(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	var conv history.Conversation
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&conv); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	h.persist(w, r, userID, &conv, http.StatusCreated)
}

// update handles PUT /api/v1/conversations/{id}.
// The path ID wins over any ID in the body.
func (h *conversationHandler) update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	var conv history.Conversation
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&conv); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	conv.ID = r.PathValue("id")

	h.persist(w, r, userID, &conv, http.StatusOK)
}

// persist saves a conversation and writes the outcome.
func (h *conversationHandler) persist(w http.ResponseWriter, r *http.Request, userID string, conv *history.Conversation, status int) {
	err := h.store.SaveConversation(r.Context(), userID, conv)
	switch {
	case errors.Is(err, history.ErrInvalidRole):
		WriteError(w, http.StatusBadRequest, "invalid_role", "message roles must be user or assistant", h.logger)
	case errors.Is(err, history.ErrConversationNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
	case err != nil:
		h.logger.Error("failed to save conversation", "error", err, "user", userID, "conversation", conv.ID)
		WriteError(w, http.StatusInternalServerError, "save_failed", "failed to save conversation", h.logger)
	default:
		writeJSON(w, status, map[string]string{"id": conv.ID, "status": "saved"}, h.logger)
	}
}

// get handles GET /api/v1/conversations/{id}.
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	conv, err := h.store.GetConversation(r.Context(), userID, r.PathValue("id"))
	switch {
	case errors.Is(err, history.ErrConversationNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
	case err != nil:
		h.logger.Error("failed to get conversation", "error", err, "user", userID)
		WriteError(w, http.StatusInternalServerError, "get_failed", "failed to get conversation", h.logger)
	default:
		writeJSON(w, http.StatusOK, conv, h.logger)
	}
}

// delete handles DELETE /api/v1/conversations/{id}.
func (h *conversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	err := h.store.DeleteConversation(r.Context(), userID, r.PathValue("id"))
	switch {
	case errors.Is(err, history.ErrConversationNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
	case err != nil:
		h.logger.Error("failed to delete conversation", "error", err, "user", userID)
		WriteError(w, http.StatusInternalServerError, "delete_failed", "failed to delete conversation", h.logger)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
	}
}

// clear handles DELETE /api/v1/conversations.
// Removes every conversation belonging to the user.
func (h *conversationHandler) clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	if err := h.store.ClearConversations(r.Context(), userID); err != nil {
		h.logger.Error("failed to clear conversations", "error", err, "user", userID)
		WriteError(w, http.StatusInternalServerError, "clear_failed", "failed to clear conversations", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"}, h.logger)
}
