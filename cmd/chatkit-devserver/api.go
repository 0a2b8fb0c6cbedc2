// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/socialconnect/chatkit/wire"
)

// api is the devserver's REST surface. Authentication is the dev
// scheme: the bearer token is the user ID, verbatim.
type api struct {
	store  *store
	hub    *hub
	logger *slog.Logger
}

// Routes registers the REST handlers on the router.
func (a *api) Routes(router *mux.Router) {
	router.HandleFunc("/notifications/user/{userID}/read-all", a.handleMarkAllNotificationsRead).Methods(http.MethodPatch)
	router.HandleFunc("/notifications/{id}/read", a.handleMarkNotificationRead).Methods(http.MethodPatch)
	router.HandleFunc("/notifications/{userID}", a.handleNotifications).Methods(http.MethodGet)
	router.HandleFunc("/chat/users", a.handlePeers).Methods(http.MethodGet)
	router.HandleFunc("/chat/send", a.handleSend).Methods(http.MethodPost)
	router.HandleFunc("/chat/messages/{peerID}/read", a.handleMarkConversationRead).Methods(http.MethodPatch)
	router.HandleFunc("/chat/messages/{peerID}", a.handleHistory).Methods(http.MethodGet)
}

// bearerUser extracts the requesting user from the Authorization
// header.
func bearerUser(request *http.Request) string {
	header := request.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func (a *api) handleNotifications(writer http.ResponseWriter, request *http.Request) {
	userID := mux.Vars(request)["userID"]
	writeJSON(writer, a.store.Notifications(userID))
}

func (a *api) handleMarkNotificationRead(writer http.ResponseWriter, request *http.Request) {
	a.store.MarkNotificationRead(mux.Vars(request)["id"])
	writeJSON(writer, map[string]bool{"success": true})
}

func (a *api) handleMarkAllNotificationsRead(writer http.ResponseWriter, request *http.Request) {
	a.store.MarkAllNotificationsRead(mux.Vars(request)["userID"])
	writeJSON(writer, map[string]bool{"success": true})
}

func (a *api) handlePeers(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, map[string]any{
		"success": true,
		"users":   a.store.Peers(),
	})
}

func (a *api) handleHistory(writer http.ResponseWriter, request *http.Request) {
	userID := bearerUser(request)
	if userID == "" {
		writeError(writer, http.StatusUnauthorized, "missing bearer token")
		return
	}
	peerID := mux.Vars(request)["peerID"]
	history := a.store.History(userID, peerID)
	if history == nil {
		history = []wire.Message{}
	}
	writeJSON(writer, history)
}

func (a *api) handleSend(writer http.ResponseWriter, request *http.Request) {
	userID := bearerUser(request)
	if userID == "" {
		writeError(writer, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var body struct {
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
		Attachment string `json:"attachment,omitempty"`
		ClientKey  string `json:"clientKey,omitempty"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeError(writer, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.ReceiverID == "" {
		writeError(writer, http.StatusBadRequest, "receiverId is required")
		return
	}
	if body.Content == "" && body.Attachment == "" {
		writeError(writer, http.StatusBadRequest, "message is empty")
		return
	}

	stored, _ := a.hub.deliverMessage(wire.Message{
		ClientKey:  body.ClientKey,
		SenderID:   userID,
		ReceiverID: body.ReceiverID,
		Content:    body.Content,
		Attachment: body.Attachment,
	})
	writeJSON(writer, stored)
}

func (a *api) handleMarkConversationRead(writer http.ResponseWriter, request *http.Request) {
	userID := bearerUser(request)
	if userID == "" {
		writeError(writer, http.StatusUnauthorized, "missing bearer token")
		return
	}
	a.store.MarkConversationRead(userID, mux.Vars(request)["peerID"])
	writeJSON(writer, map[string]bool{"success": true})
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(value)
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	code := strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	json.NewEncoder(writer).Encode(map[string]any{
		"code":    code,
		"message": message,
	})
}
