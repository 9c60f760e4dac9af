// Package ollamaclient is a thin HTTP client for a local Ollama server.
//
// It speaks the native Ollama API (JSON requests, NDJSON streaming
// responses) and reuses the request/response types from
// github.com/ollama/ollama/api rather than redefining them.
package ollamaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	// DefaultOllamaURL is used when no host is configured.
	DefaultOllamaURL = "http://127.0.0.1:11434"

	// DefaultTimeout bounds a whole request, including a long generation.
	DefaultTimeout = 10 * time.Minute
)

// Client talks to one Ollama server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

var jsonBufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// NewClient creates a client for the given host. An empty host falls back to
// DefaultOllamaURL. httpClient and logger may be nil.
func NewClient(host string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if host == "" {
		host = DefaultOllamaURL
	}

	baseURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama host %q: %w", host, err)
	}

	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:      100,
				IdleConnTimeout:   90 * time.Second,
				MaxConnsPerHost:   100,
				ForceAttemptHTTP2: true,
			},
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the server URL this client targets.
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

func (c *Client) doRequest(ctx context.Context, method, path string, reqData, respData any) error {
	reqBody, err := c.prepareRequestBody(reqData)
	if err != nil {
		return err
	}
	defer func() {
		if closer, ok := reqBody.(io.Closer); ok {
			_ = closer.Close()
		}
	}()

	requestURL := c.baseURL.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if err := c.checkError(response); err != nil {
		return err
	}

	if respData != nil {
		if err := json.NewDecoder(response.Body).Decode(respData); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

func (c *Client) prepareRequestBody(reqData any) (io.Reader, error) {
	if reqData == nil {
		return http.NoBody, nil
	}

	buf, ok := jsonBufferPool.Get().(*bytes.Buffer)
	if !ok {
		return nil, errors.New("failed get data from buffer")
	}
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(reqData); err != nil {
		jsonBufferPool.Put(buf)
		return nil, fmt.Errorf("failed to encode request data: %w", err)
	}

	return struct {
		io.Reader
		io.Closer
	}{
		Reader: buf,
		Closer: closerFunc(func() {
			jsonBufferPool.Put(buf)
		}),
	}, nil
}

func (c *Client) checkError(response *http.Response) error {
	if response.StatusCode < http.StatusBadRequest {
		return nil
	}

	var apiError struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(response.Body).Decode(&apiError); err != nil {
		return fmt.Errorf("ollama API error (status %d): %s",
			response.StatusCode, http.StatusText(response.StatusCode))
	}

	return fmt.Errorf("ollama API error (status %d): %s", response.StatusCode, apiError.Error)
}
