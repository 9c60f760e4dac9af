package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/tomeworks/tome/internal/ollamaclient"
)

var (
	ErrNoMessages     = errors.New("ollama: no messages provided")
	ErrInvalidOllama  = errors.New("ollama: invalid model specified")
	ErrOllamaNoClient = errors.New("ollama: client is required")
)

// Ollama generates chat completions through a local Ollama server.
type Ollama struct {
	client *ollamaclient.Client
	model  string
	logger *slog.Logger
}

var _ Model = (*Ollama)(nil)

// NewOllama creates an Ollama chat model. logger may be nil.
func NewOllama(client *ollamaclient.Client, model string, logger *slog.Logger) (*Ollama, error) {
	if client == nil {
		return nil, ErrOllamaNoClient
	}
	if model == "" {
		return nil, ErrInvalidOllama
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Ollama{
		client: client,
		model:  model,
		logger: logger.With("component", "ollama_llm", "model", model),
	}, nil
}

// GenerateContent handles structured message-based content generation.
func (o *Ollama) GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	start := time.Now()

	opts := CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	chatMsgs := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		chatMsgs = append(chatMsgs, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	reqOptions := map[string]any{}
	if opts.Temperature > 0 {
		reqOptions["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		reqOptions["num_predict"] = opts.MaxTokens
	}

	isStreaming := opts.StreamingFunc != nil
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: chatMsgs,
		Stream:   &isStreaming,
		Options:  reqOptions,
	}

	var fullResponse strings.Builder
	var finalResp api.ChatResponse

	fn := func(response api.ChatResponse) error {
		fullResponse.WriteString(response.Message.Content)
		if opts.StreamingFunc != nil && response.Message.Content != "" {
			if errStream := opts.StreamingFunc(ctx, []byte(response.Message.Content)); errStream != nil {
				return fmt.Errorf("streaming function returned an error: %w", errStream)
			}
		}
		if response.Done {
			finalResp = response
		}
		return nil
	}

	err := o.client.GenerateChat(ctx, req, fn)
	duration := time.Since(start)
	if err != nil {
		o.logger.ErrorContext(ctx, "ollama request failed", "error", err, "duration", duration)
		return nil, err
	}

	totalTokens := int32(finalResp.Metrics.EvalCount + finalResp.Metrics.PromptEvalCount)

	return &Response{
		Content:     fullResponse.String(),
		StopReason:  finalResp.DoneReason,
		TotalTokens: totalTokens,
		Duration:    duration,
		Model:       o.model,
	}, nil
}
