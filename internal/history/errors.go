package history

import "errors"

// Sentinel errors for history operations.
// These are part of the Store's public API and should be checked with
// errors.Is().
var (
	// ErrConversationNotFound indicates the conversation does not exist or
	// belongs to a different user.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInvalidRole indicates a message role outside user/assistant.
	ErrInvalidRole = errors.New("invalid message role")
)

// userIDPrefix is prepended to generated user IDs.
const userIDPrefix = "user_"

// DefaultListLimit is the conversation count returned when the caller does
// not specify one.
const DefaultListLimit = 50
