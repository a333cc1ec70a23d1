// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream consumes server-sent event chat responses.
//
// Open starts a POST request whose body is read incrementally in its own
// goroutine and hands every decoded record to a callback. It returns a cancel
// function immediately, before any network activity completes.
//
// Callback guarantees for a single Open call:
//
//   - OnRecord calls are sequential and in arrival order
//   - OnComplete fires exactly once (natural end, error or cancel)
//   - OnError fires at most once, after OnComplete, and never once cancel
//     has been requested
//   - once cancel has returned no further record is handed out; an OnRecord
//     call already running when cancel ran may still finish
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the stream client.
type ClientConfig struct {
	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// ReadBufferSize is the size of each body read (default: 4KB)
	ReadBufferSize int

	// MaxErrorBody caps how much of a failed response is read for its
	// error message (default: 4KB)
	MaxErrorBody int64

	// Logger receives frame decode warnings (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:        30 * time.Second,
		ReadBufferSize: 4096,
		MaxErrorBody:   4096,
		Logger:         slog.Default(),
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client opens chat streams and performs plain completion requests.
// The Client is safe for concurrent use.
type Client struct {
	config *ClientConfig

	// httpClient has a timeout and serves Complete.
	httpClient *http.Client

	// streamClient has no timeout; streams end through ctx or cancel.
	streamClient *http.Client
}

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client, filling zero values with defaults.
func NewClientWithConfig(config *ClientConfig) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = defaults.ReadBufferSize
	}
	if config.MaxErrorBody <= 0 {
		config.MaxErrorBody = defaults.MaxErrorBody
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
	}
}

// Completion is the body of a non-streaming chat response.
type Completion struct {
	Content   string `json:"content"`
	ModelID   string `json:"modelId"`
	Timestamp int64  `json:"timestamp"`
}

// Complete performs a non-streaming request and decodes the single JSON
// response object.
func (c *Client) Complete(ctx context.Context, endpoint string, payload any) (*Completion, error) {
	req, err := newRequest(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "completion request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp, c.readServerError(resp.Body))
	}

	var out Completion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: KindDecode, Message: "failed to decode completion", Cause: err}
	}
	return &out, nil
}

// readServerError extracts the "error" field of a JSON error body, if any.
func (c *Client) readServerError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, c.config.MaxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		return payload.Error
	}
	return ""
}

func newRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindRequest, Message: "failed to marshal request", Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindRequest, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
