// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/socialconnect/chatkit/wire"
)

// newTestClient creates a Client pointing at a test server.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func assertAuth(t *testing.T, request *http.Request, token string) {
	t.Helper()
	if got := request.Header.Get("Authorization"); got != "Bearer "+token {
		t.Errorf("Authorization = %q, want bearer %q", got, token)
	}
}

func writeJSON(writer http.ResponseWriter, v any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(v)
}

func TestNotifications(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/notifications/u1" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, []wire.Notification{
			{ID: "n1", Message: "liked your post", Read: false},
			{ID: "n2", Message: "commented", Read: true},
		})
	}))

	notifications, err := client.Notifications(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Notifications failed: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("got %d notifications, want 2", len(notifications))
	}
	if notifications[0].ID != "n1" || notifications[0].Read {
		t.Errorf("unexpected first notification: %+v", notifications[0])
	}
}

func TestMarkNotificationRead(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		gotMethod, gotPath = request.Method, request.URL.Path
		writeJSON(writer, map[string]bool{"success": true})
	}))

	if err := client.MarkNotificationRead(context.Background(), "n1"); err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/notifications/n1/read" {
		t.Errorf("request = %s %s, want PATCH /notifications/n1/read", gotMethod, gotPath)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		gotPath = request.URL.Path
		writeJSON(writer, map[string]bool{"success": true})
	}))

	if err := client.MarkAllNotificationsRead(context.Background(), "u1"); err != nil {
		t.Fatalf("MarkAllNotificationsRead failed: %v", err)
	}
	if gotPath != "/notifications/user/u1/read-all" {
		t.Errorf("path = %s, want /notifications/user/u1/read-all", gotPath)
	}
}

func TestChatPeers(t *testing.T) {
	t.Run("wrapped response", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writeJSON(writer, map[string]any{
				"success": true,
				"users":   []wire.Peer{{ID: "u2", DisplayName: "Ada"}},
			})
		}))

		peers, err := client.ChatPeers(context.Background())
		if err != nil {
			t.Fatalf("ChatPeers failed: %v", err)
		}
		if len(peers) != 1 || peers[0].ID != "u2" {
			t.Errorf("unexpected peers: %+v", peers)
		}
	})

	t.Run("bare array response", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writeJSON(writer, []wire.Peer{{ID: "u3", DisplayName: "Lin"}})
		}))

		peers, err := client.ChatPeers(context.Background())
		if err != nil {
			t.Fatalf("ChatPeers failed: %v", err)
		}
		if len(peers) != 1 || peers[0].ID != "u3" {
			t.Errorf("unexpected peers: %+v", peers)
		}
	})
}

func TestHistory(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/chat/messages/u2" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, []wire.Message{
			{ID: "m1", SenderID: "u2", ReceiverID: "u1", Content: "hello", CreatedAt: time.Now()},
		})
	}))

	messages, err := client.History(context.Background(), "u2")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(messages) != 1 || messages[0].ID != "m1" {
		t.Errorf("unexpected history: %+v", messages)
	}
}

func TestSendMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		var body SendMessageRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if body.ReceiverID != "u2" || body.Content != "hi" || body.ClientKey != "ck-1" {
			t.Errorf("unexpected request body: %+v", body)
		}
		writeJSON(writer, wire.Message{
			ID:         "m9",
			ClientKey:  body.ClientKey,
			SenderID:   "u1",
			ReceiverID: body.ReceiverID,
			Content:    body.Content,
		})
	}))

	message, err := client.SendMessage(context.Background(), SendMessageRequest{
		ReceiverID: "u2",
		Content:    "hi",
		ClientKey:  "ck-1",
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if message.ID != "m9" || message.ClientKey != "ck-1" {
		t.Errorf("unexpected response message: %+v", message)
	}
}

func TestMarkConversationRead(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		gotMethod, gotPath = request.Method, request.URL.Path
		writeJSON(writer, map[string]bool{"success": true})
	}))

	if err := client.MarkConversationRead(context.Background(), "u2"); err != nil {
		t.Fatalf("MarkConversationRead failed: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/chat/messages/u2/read" {
		t.Errorf("request = %s %s, want PATCH /chat/messages/u2/read", gotMethod, gotPath)
	}
}

func TestStructuredError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusNotFound)
		json.NewEncoder(writer).Encode(Error{Code: "NOT_FOUND", Message: "no such user"})
	}))

	_, err := client.History(context.Background(), "nobody")
	if err == nil {
		t.Fatal("History succeeded, want error")
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if apiErr.Code != "NOT_FOUND" || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if !IsStatus(err, http.StatusNotFound) {
		t.Error("IsStatus(404) = false, want true")
	}
}

func TestNonJSONError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("upstream unavailable"))
	}))

	_, err := client.Notifications(context.Background(), "u1")
	if !IsStatus(err, http.StatusBadGateway) {
		t.Fatalf("error = %v, want 502 *Error", err)
	}
	var apiErr *Error
	errors.As(err, &apiErr)
	if apiErr.Message != "upstream unavailable" {
		t.Errorf("message = %q, want raw body", apiErr.Message)
	}
}
