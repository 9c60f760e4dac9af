package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store manages conversation persistence with a SQLite backend.
//
// Store is safe for concurrent use by multiple goroutines; SQLite
// serializes writers underneath.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store instance. logger may be nil.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// GetOrCreateUser resolves a user by identity header first, then by API key,
// creating a new user when neither matches. Returns the user ID.
func (s *Store) GetOrCreateUser(ctx context.Context, apiKey, userIdentity string) (string, error) {
	var userID string
	var err error

	switch {
	case userIdentity != "":
		err = s.db.QueryRowContext(ctx,
			"SELECT id FROM users WHERE user_identity = ?", userIdentity).Scan(&userID)
	case apiKey != "":
		err = s.db.QueryRowContext(ctx,
			"SELECT id FROM users WHERE api_key = ?", apiKey).Scan(&userID)
	default:
		err = sql.ErrNoRows
	}

	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	userID = userIDPrefix + uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, api_key, user_identity, created_at) VALUES (?, ?, ?, ?)",
		userID, nullable(apiKey), nullable(userIdentity), time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("created new user", "user_id", userID)
	return userID, nil
}

// SaveConversation upserts a conversation and replaces its messages.
// The whole operation runs in a transaction: on any failure nothing changes.
func (s *Store) SaveConversation(ctx context.Context, userID string, conv *Conversation) error {
	for _, msg := range conv.Messages {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	now := time.Now().UTC()

	var existingOwner string
	err = tx.QueryRowContext(ctx,
		"SELECT user_id FROM conversations WHERE id = ?", conv.ID).Scan(&existingOwner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		createdAt := conv.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			conv.ID, userID, conv.Title, createdAt, now); err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to check conversation: %w", err)
	case existingOwner != userID:
		return ErrConversationNotFound
	default:
		if _, err := tx.ExecContext(ctx,
			"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
			conv.Title, now, conv.ID); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
			return fmt.Errorf("failed to clear messages: %w", err)
		}
	}

	for i, msg := range conv.Messages {
		id := msg.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages (id, conversation_id, role, content, position, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			id, conv.ID, msg.Role, msg.Content, i, createdAt); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("saved conversation",
		"conversation_id", conv.ID, "messages", len(conv.Messages))
	return nil
}

// ListConversations returns a user's conversations with their messages,
// newest-updated first. limit <= 0 uses DefaultListLimit.
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at FROM conversations "+
			"WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv := &Conversation{}
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	for _, conv := range convs {
		msgs, err := s.loadMessages(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		conv.Messages = msgs
	}

	s.logger.Debug("listed conversations", "user_id", userID, "count", len(convs))
	return convs, nil
}

// GetConversation retrieves one conversation with messages.
// Returns ErrConversationNotFound when it is missing or owned by another user.
func (s *Store) GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	conv := &Conversation{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?",
		conversationID, userID).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", conversationID, err)
	}

	msgs, err := s.loadMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

// DeleteConversation removes a conversation and its messages.
// Returns ErrConversationNotFound for missing or foreign conversations.
func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var owner string
	err = tx.QueryRowContext(ctx,
		"SELECT user_id FROM conversations WHERE id = ?", conversationID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
		if err == nil {
			s.logger.Warn("unauthorized deletion attempt",
				"conversation_id", conversationID, "user_id", userID)
		}
		return ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("deleted conversation", "conversation_id", conversationID)
	return nil
}

// ClearConversations deletes all conversations for a user.
func (s *Store) ClearConversations(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id IN "+
			"(SELECT id FROM conversations WHERE user_id = ?)", userID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM conversations WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("cleared conversations", "user_id", userID)
	return nil
}

// Ping verifies database connectivity, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("history database not reachable: %w", err)
	}
	return nil
}

func (s *Store) loadMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, content, created_at FROM messages "+
			"WHERE conversation_id = ? ORDER BY position",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}

// nullable converts empty strings to NULL so unique lookups don't collide on "".
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
