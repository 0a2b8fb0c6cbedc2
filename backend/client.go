// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/socialconnect/chatkit/wire"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the base URL of the backend (e.g., "http://localhost:3001").
	BaseURL string
	// Token is the bearer token attached to every request.
	Token string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is the durable request client. It is stateless apart from its
// configuration and safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a durable request client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("backend: BaseURL is required")
	}

	// Validate the URL structure. We store the string form (with
	// trailing slash stripped) and build request URLs by direct
	// concatenation, which avoids double-encoding of already-escaped
	// path segments.
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("backend: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a network disruption to
// force subsequent requests onto fresh TCP connections instead of a
// poisoned pooled connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Notifications performs the initial bulk notification fetch for the
// given user. The result fully replaces any local notification state.
func (c *Client) Notifications(ctx context.Context, userID string) ([]wire.Notification, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/notifications/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("backend: fetching notifications: %w", err)
	}

	var notifications []wire.Notification
	if err := json.Unmarshal(body, &notifications); err != nil {
		return nil, fmt.Errorf("backend: parsing notifications response: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead marks one notification read on the server.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	_, err := c.doRequest(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(notificationID)+"/read", nil)
	if err != nil {
		return fmt.Errorf("backend: marking notification read: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead marks every notification for the user read
// on the server in one call.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := c.doRequest(ctx, http.MethodPatch, "/notifications/user/"+url.PathEscape(userID)+"/read-all", nil)
	if err != nil {
		return fmt.Errorf("backend: marking all notifications read: %w", err)
	}
	return nil
}

// peersResponse tolerates the two shapes the peer directory endpoint
// has returned across backend versions: a wrapper object or a bare
// array.
type peersResponse struct {
	Success bool        `json:"success"`
	Users   []wire.Peer `json:"users"`
}

// ChatPeers fetches the directory of users available to chat with.
func (c *Client) ChatPeers(ctx context.Context) ([]wire.Peer, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/chat/users", nil)
	if err != nil {
		return nil, fmt.Errorf("backend: fetching chat peers: %w", err)
	}

	var wrapped peersResponse
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Users != nil {
		return wrapped.Users, nil
	}

	var peers []wire.Peer
	if err := json.Unmarshal(body, &peers); err != nil {
		return nil, fmt.Errorf("backend: parsing chat peers response: %w", err)
	}
	return peers, nil
}

// History fetches the full message history for the conversation with
// the given peer, ordered by creation time ascending.
func (c *Client) History(ctx context.Context, peerID string) ([]wire.Message, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/chat/messages/"+url.PathEscape(peerID), nil)
	if err != nil {
		return nil, fmt.Errorf("backend: fetching history for %s: %w", peerID, err)
	}

	var messages []wire.Message
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("backend: parsing history response: %w", err)
	}
	return messages, nil
}

// SendMessageRequest holds parameters for the persisted send. Content
// and Attachment may not both be empty; the engine validates this
// before any network call, and the server enforces it again.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content,omitempty"`
	Attachment string `json:"attachment,omitempty"`
	// ClientKey is the client-generated idempotency key of the
	// optimistic send, echoed back by the server when supported.
	ClientKey string `json:"clientKey,omitempty"`
}

// SendMessage persists one message and returns the stored record with
// its server-issued ID.
func (c *Client) SendMessage(ctx context.Context, request SendMessageRequest) (*wire.Message, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/chat/send", request)
	if err != nil {
		return nil, fmt.Errorf("backend: sending message: %w", err)
	}

	var message wire.Message
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, fmt.Errorf("backend: parsing send response: %w", err)
	}
	return &message, nil
}

// MarkConversationRead marks every message from the given peer as read
// for the authenticated user.
func (c *Client) MarkConversationRead(ctx context.Context, peerID string) error {
	_, err := c.doRequest(ctx, http.MethodPatch, "/chat/messages/"+url.PathEscape(peerID)+"/read", nil)
	if err != nil {
		return fmt.Errorf("backend: marking conversation read: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request against the backend and returns
// the response body. On 2xx, returns the body. On 4xx/5xx, returns a
// *Error.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	requestURL := c.baseURL + path

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All backend error responses use the same JSON shape.
	var apiErr Error
	if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr != nil || apiErr.Message == "" {
		// Non-JSON error body. Should not happen with a healthy
		// backend, but fail loud with the raw body.
		return nil, &Error{
			Message:    strings.TrimSpace(string(responseBody)),
			StatusCode: response.StatusCode,
		}
	}
	apiErr.StatusCode = response.StatusCode

	return responseBody, &apiErr
}
