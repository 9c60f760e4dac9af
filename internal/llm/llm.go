// Package llm abstracts chat-completion providers behind a single Model
// interface with optional token streaming.
package llm

import (
	"context"
	"time"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Response is the model's answer to a chat request. For streaming calls
// Content holds the full accumulated text.
type Response struct {
	Content     string
	StopReason  string
	TotalTokens int32
	Duration    time.Duration
	Model       string
}

// Model generates chat completions.
type Model interface {
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*Response, error)
}

// CallOptions are per-call generation parameters.
type CallOptions struct {
	Temperature float64
	MaxTokens   int

	// StreamingFunc, when set, receives each token chunk as it arrives.
	// Returning an error aborts the generation.
	StreamingFunc func(ctx context.Context, chunk []byte) error
}

// CallOption mutates CallOptions.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = temperature
	}
}

// WithMaxTokens caps the generated token count.
func WithMaxTokens(maxTokens int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithStreamingFunc specifies the streaming function to use.
func WithStreamingFunc(streamingFunc func(ctx context.Context, chunk []byte) error) CallOption {
	return func(o *CallOptions) {
		o.StreamingFunc = streamingFunc
	}
}
