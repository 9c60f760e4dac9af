package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

var (
	ErrNoAPIKey      = errors.New("gemini: API key is required")
	ErrInvalidModel  = errors.New("gemini: invalid model specified")
	ErrNoContent     = errors.New("gemini: no content generated")
	ErrSystemMessage = errors.New("gemini: system message must be the first message in the conversation")
)

// Gemini generates chat completions through Google's hosted models.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

var _ Model = (*Gemini)(nil)

// NewGemini creates a Gemini chat client. An empty apiKey falls back to the
// GEMINI_API_KEY environment variable. logger may be nil.
func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		return nil, ErrInvalidModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  model,
		logger: logger.With("component", "gemini_llm", "model", model),
	}, nil
}

// GenerateContent handles multi-turn conversations and streaming.
func (g *Gemini) GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*Response, error) {
	start := time.Now()

	callOpts := &CallOptions{}
	for _, opt := range options {
		opt(callOpts)
	}

	genConfig := &genai.GenerateContentConfig{}
	if callOpts.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(float32(callOpts.Temperature))
	}
	if callOpts.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(callOpts.MaxTokens)
	}

	history, systemInstruction, err := convertToGeminiMessages(messages)
	if err != nil {
		return nil, err
	}
	if systemInstruction != nil {
		genConfig.SystemInstruction = systemInstruction
	}
	if len(history) == 0 {
		return nil, errors.New("gemini: no messages to send")
	}

	if callOpts.StreamingFunc == nil {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, history, genConfig)
		duration := time.Since(start)
		if err != nil {
			g.logger.ErrorContext(ctx, "gemini request failed", "error", err, "duration", duration)
			return nil, err
		}
		return g.responseFromGenai(resp, duration), nil
	}

	var fullResponse strings.Builder
	var finalResp *genai.GenerateContentResponse

	for resp, errStream := range g.client.Models.GenerateContentStream(ctx, g.model, history, genConfig) {
		if errStream != nil {
			g.logger.ErrorContext(ctx, "gemini stream error", "error", errStream)
			return nil, errStream
		}

		finalResp = resp
		chunkContent := extractContent(resp)
		fullResponse.WriteString(chunkContent)
		if err := callOpts.StreamingFunc(ctx, []byte(chunkContent)); err != nil {
			return nil, fmt.Errorf("streaming function returned an error: %w", err)
		}
	}

	duration := time.Since(start)

	var totalTokens int32
	var stopReason string
	if finalResp != nil {
		if finalResp.UsageMetadata != nil {
			totalTokens = finalResp.UsageMetadata.TotalTokenCount
		}
		if len(finalResp.Candidates) > 0 {
			stopReason = string(finalResp.Candidates[0].FinishReason)
		}
	}

	return &Response{
		Content:     fullResponse.String(),
		StopReason:  stopReason,
		TotalTokens: totalTokens,
		Duration:    duration,
		Model:       g.model,
	}, nil
}

func (g *Gemini) responseFromGenai(resp *genai.GenerateContentResponse, duration time.Duration) *Response {
	var totalTokens int32
	var stopReason string
	if resp.UsageMetadata != nil {
		totalTokens = resp.UsageMetadata.TotalTokenCount
	}
	if len(resp.Candidates) > 0 {
		stopReason = string(resp.Candidates[0].FinishReason)
	}

	return &Response{
		Content:     extractContent(resp),
		StopReason:  stopReason,
		TotalTokens: totalTokens,
		Duration:    duration,
		Model:       g.model,
	}
}

// convertToGeminiMessages maps generic messages onto Gemini's native types.
// A system message is only allowed at position zero and becomes the system
// instruction.
func convertToGeminiMessages(messages []Message) ([]*genai.Content, *genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	var systemInstruction *genai.Content

	for i, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case RoleUser:
			role = genai.RoleUser
		case RoleAssistant:
			role = genai.RoleModel
		case RoleSystem:
			if i != 0 || systemInstruction != nil {
				return nil, nil, ErrSystemMessage
			}
			systemInstruction = genai.NewContentFromText(msg.Content, genai.RoleUser)
			continue
		default:
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents, systemInstruction, nil
}

// extractContent safely extracts the text content from a response.
func extractContent(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var builder strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				builder.WriteString(part.Text)
			}
		}
	}
	return builder.String()
}
