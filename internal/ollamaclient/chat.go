package ollamaclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/ollama/ollama/api"
)

// MaxBufferSize caps a single NDJSON line from the server.
const MaxBufferSize = 512 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// GenerateChat calls /api/chat. When req.Stream is set, fn receives every
// chunk as it arrives; otherwise the chunks are accumulated and fn is called
// once with the complete response.
func (c *Client) GenerateChat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	if req.Stream == nil || !*req.Stream {
		var finalResp api.ChatResponse
		var accumulated strings.Builder

		err := c.streamRequest(ctx, http.MethodPost, "/api/chat", req, func(data []byte) error {
			var resp api.ChatResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("unmarshal chat chunk: %w", err)
			}
			if resp.Message.Content != "" {
				accumulated.WriteString(resp.Message.Content)
			}
			if resp.Done {
				finalResp = resp
			}
			return nil
		})
		if err != nil {
			return err
		}

		finalResp.Message.Content = accumulated.String()
		return fn(finalResp)
	}

	return c.streamRequest(ctx, http.MethodPost, "/api/chat", req, func(data []byte) error {
		var resp api.ChatResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("unmarshal streaming chat chunk: %w", err)
		}
		return fn(resp)
	})
}

// Embed calls /api/embed for one or more inputs.
func (c *Client) Embed(ctx context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error) {
	var resp api.EmbedResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/embed", req, &resp); err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	return &resp, nil
}

// List calls /api/tags and returns the locally available models.
func (c *Client) List(ctx context.Context) (*api.ListResponse, error) {
	var resp api.ListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, fmt.Errorf("list models request failed: %w", err)
	}
	return &resp, nil
}

// Health reports whether the server answers at all, used by readiness probes.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/version", nil, &resp); err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	return nil
}

func (c *Client) streamRequest(ctx context.Context, method, path string, reqData any, callback func([]byte) error) error {
	buf, ok := bufferPool.Get().(*bytes.Buffer)
	if !ok {
		return errors.New("failed get data from buffer")
	}
	buf.Reset()
	defer bufferPool.Put(buf)

	if reqData != nil {
		if err := json.NewEncoder(buf).Encode(reqData); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	requestURL := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, requestURL.String(), buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("ollama stream request failed",
			"status", resp.StatusCode,
			"method", method,
			"url", requestURL.String(),
			"response_body", string(body),
		)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, MaxBufferSize), MaxBufferSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := callback(line); err != nil {
			return fmt.Errorf("callback error: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read error: %w", err)
	}

	return nil
}
