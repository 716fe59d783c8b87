// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds the backend connection settings.
type ClientConfig struct {
	// BaseURL of the assistant backend, e.g. "http://localhost:8001".
	BaseURL string
	// Timeout for non-streaming requests.
	Timeout time.Duration
	// UserID is the anonymous identity attached to every request.
	UserID string
	// Language is the answer language code sent with chat requests.
	Language string
}

// DefaultConfig returns sensible connection defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL:  "http://localhost:8001",
		Timeout:  60 * time.Second,
		Language: "ru",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the SBR assistant backend over HTTP.
type Client struct {
	config ClientConfig
	// httpClient enforces the configured timeout for request/response calls.
	httpClient *http.Client
	// streamClient has no timeout. Streaming responses stay open for the
	// duration of generation; cancellation comes from the context.
	streamClient *http.Client
}

// NewClient creates a client. Zero-valued config fields fall back to
// DefaultConfig.
func NewClient(config ClientConfig) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Language == "" {
		config.Language = def.Language
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
	}
}

// SetLanguage changes the answer language for subsequent chat requests.
func (c *Client) SetLanguage(code string) {
	c.config.Language = code
}

// UserID returns the identity the client was built with.
func (c *Client) UserID() string {
	return c.config.UserID
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// CreateSession registers a new server-side session and returns its id.
func (c *Client) CreateSession(ctx context.Context, name string) (string, error) {
	req := CreateSessionRequest{UserID: c.config.UserID, SessionName: name}

	var resp CreateSessionResponse
	if err := c.postJSON(ctx, "/api/sessions", req, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "create session returned no session_id",
		}
	}
	return resp.SessionID, nil
}

// RenameSession sets the display name of a session.
func (c *Client) RenameSession(ctx context.Context, sessionID, name string) error {
	path := fmt.Sprintf("/api/sessions/%s/name", url.PathEscape(sessionID))
	return c.putJSON(ctx, path, RenameSessionRequest{SessionName: name})
}

// ListSessions fetches all sessions belonging to the configured user.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	path := fmt.Sprintf("/api/sessions/%s", url.PathEscape(c.config.UserID))

	var resp ListSessionsResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// FetchHistory retrieves up to limit persisted messages of a session,
// oldest first.
func (c *Client) FetchHistory(ctx context.Context, sessionID string, limit int) ([]HistoryMessage, error) {
	path := fmt.Sprintf("/api/sessions/%s/history?limit=%d", url.PathEscape(sessionID), limit)

	var resp HistoryResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DeleteSession removes a session and its history on the server.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/api/sessions/%s", url.PathEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.config.BaseURL+path, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "building delete request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyError(err, "delete session")
	}
	defer resp.Body.Close()
	return c.checkStatus(resp, "delete session")
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat asks a question in non-streaming mode and returns the full answer.
func (c *Client) Chat(ctx context.Context, sessionID, query string) (*ChatResponse, error) {
	req := ChatRequest{
		Query:     query,
		SessionID: sessionID,
		UserID:    c.config.UserID,
		Language:  c.config.Language,
	}

	var resp ChatResponse
	if err := c.postJSON(ctx, "/api/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChatStream asks a question in streaming mode. The returned reader owns
// the response body; the caller must run Process (or Close) on it.
func (c *Client) ChatStream(ctx context.Context, sessionID, query string) (*StreamReader, error) {
	reqBody := ChatRequest{
		Query:     query,
		SessionID: sessionID,
		UserID:    c.config.UserID,
		Language:  c.config.Language,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "encoding chat request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "building chat request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, classifyError(err, "chat stream")
	}
	if err := c.checkStatus(resp, "chat stream"); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return NewStreamReader(resp.Body), nil
}

// =============================================================================
// FEEDBACK AND CHART OPERATIONS
// =============================================================================

// SendFeedback submits a verdict for an assistant message.
func (c *Client) SendFeedback(ctx context.Context, messageID, sessionID string, kind FeedbackType, text string) error {
	path := fmt.Sprintf("/api/messages/%s/feedback", url.PathEscape(messageID))
	req := FeedbackRequest{
		SessionID:    sessionID,
		UserID:       c.config.UserID,
		FeedbackType: kind,
		FeedbackText: text,
	}
	return c.postJSON(ctx, path, req, nil)
}

// FetchChart retrieves the rendered markup of a chart.
func (c *Client) FetchChart(ctx context.Context, chartID string) (*ChartResponse, error) {
	path := fmt.Sprintf("/api/charts/%s", url.PathEscape(chartID))

	var resp ChartResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "building request", Cause: err}
	}
	return c.doJSON(req, path, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "encoding request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "building request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, path, out)
}

func (c *Client) putJSON(ctx context.Context, path string, in any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "encoding request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "building request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, path, nil)
}

func (c *Client) doJSON(req *http.Request, operation string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyError(err, operation)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, operation); err != nil {
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: fmt.Sprintf("decoding %s response", operation),
			Cause:   err,
		}
	}
	return nil
}

func (c *Client) checkStatus(resp *http.Response, operation string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &ClientError{
			Type:    ErrTypeNotFound,
			Message: fmt.Sprintf("%s: not found", operation),
		}
	case resp.StatusCode >= 500:
		return &ClientError{
			Type:    ErrTypeServer,
			Message: fmt.Sprintf("%s: server error (HTTP %d)", operation, resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: fmt.Sprintf("%s: HTTP %d", operation, resp.StatusCode),
		}
	}
	return nil
}
