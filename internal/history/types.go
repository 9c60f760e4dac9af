// Package history provides persistence for conversation history.
//
// Responsibilities: save/load user conversations and their messages in
// SQLite. Every operation is scoped to a user resolved from the request
// credentials, so one user can never read or delete another's conversations.
package history

import "time"

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User identifies a chat client. A user is keyed either by the API key it
// presents or by an identity header injected by a fronting load balancer.
type User struct {
	ID           string
	APIKey       string
	UserIdentity string
	CreatedAt    time.Time
}

// Conversation is a titled sequence of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"timestamp"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// Message is a single conversation turn.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}
