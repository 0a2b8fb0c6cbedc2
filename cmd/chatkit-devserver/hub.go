// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/socialconnect/chatkit/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub tracks the connected clients and relays live events between
// them. One client per user ID: a second join for the same user
// replaces the first.
type hub struct {
	store  *store
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
}

func newHub(store *store, logger *slog.Logger) *hub {
	return &hub{
		store:   store,
		logger:  logger,
		clients: make(map[string]*client),
	}
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan wire.Envelope
}

// ServeChannel upgrades the request and runs the client's session.
// The first event must be a join; everything before it is dropped.
func (h *hub) ServeChannel(writer http.ResponseWriter, request *http.Request) {
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan wire.Envelope, sendBuffer)}
	go c.writePump(h.logger)
	c.readPump(h)
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	if previous, ok := h.clients[c.userID]; ok {
		close(previous.send)
		previous.conn.Close()
	}
	h.clients[c.userID] = c
	h.mu.Unlock()

	h.logger.Info("user joined", "user_id", c.userID)
	h.broadcastRoster()
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	current, ok := h.clients[c.userID]
	if ok && current == c {
		delete(h.clients, c.userID)
		close(c.send)
	}
	h.mu.Unlock()
	if !ok || current != c {
		return
	}

	h.logger.Info("user left", "user_id", c.userID)
	h.broadcastRoster()
}

func (h *hub) roster() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	online := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		online = append(online, userID)
	}
	return online
}

func (h *hub) broadcastRoster() {
	envelope, err := wire.NewEnvelope(wire.EventUsersOnline, wire.Roster(h.roster()))
	if err != nil {
		h.logger.Error("encoding roster", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, c := range h.clients {
		select {
		case c.send <- envelope:
		default:
			// A wedged client loses its session, not the hub.
			delete(h.clients, userID)
			close(c.send)
		}
	}
}

// sendTo delivers an event to one user. Offline users are a no-op:
// durable state reaches them via REST on their next session.
func (h *hub) sendTo(userID, event string, payload any) {
	envelope, err := wire.NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error("encoding event", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[userID]
	if !ok {
		return
	}
	select {
	case c.send <- envelope:
	default:
		delete(h.clients, userID)
		close(c.send)
	}
}

func (c *client) readPump(h *hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var envelope wire.Envelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			return
		}
		h.handleEvent(c, envelope)
	}
}

func (c *client) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case envelope, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(envelope); err != nil {
				logger.Debug("write failed", "user_id", c.userID, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent processes one inbound client event.
func (h *hub) handleEvent(c *client, envelope wire.Envelope) {
	switch envelope.Event {
	case wire.EventJoin:
		var join wire.JoinRequest
		if err := envelope.Decode(&join); err != nil || join.UserID == "" {
			h.sendError(c, "join requires a user ID")
			return
		}
		c.userID = join.UserID
		h.store.RegisterPeer(wire.Peer{ID: join.UserID, DisplayName: join.UserID})
		h.register(c)
		h.sendTo(c.userID, wire.EventJoined, wire.JoinAck{
			UserID:      c.userID,
			OnlineUsers: h.roster(),
		})

	case wire.EventSendMessage:
		if c.userID == "" {
			return
		}
		var message wire.Message
		if err := envelope.Decode(&message); err != nil {
			h.sendError(c, "malformed message")
			return
		}
		message.SenderID = c.userID
		h.deliverMessage(message)

	case wire.EventTyping:
		if c.userID == "" {
			return
		}
		var typing wire.TypingEvent
		if err := envelope.Decode(&typing); err != nil {
			return
		}
		typing.SenderID = c.userID
		h.sendTo(typing.ReceiverID, wire.EventUserTyping, typing)

	case wire.EventMarkMessagesRead:
		if c.userID == "" {
			return
		}
		var mark wire.MarkRead
		if err := envelope.Decode(&mark); err != nil {
			return
		}
		h.store.MarkConversationRead(c.userID, mark.SenderID)
		h.sendTo(mark.SenderID, wire.EventMessagesRead, wire.ReadReceipt{
			ReadBy:    c.userID,
			Timestamp: time.Now().UTC(),
		})

	case wire.EventLeave:
		h.unregister(c)

	default:
		h.logger.Debug("unhandled event", "event", envelope.Event, "user_id", c.userID)
	}
}

// deliverMessage stores a message and fans it out: receive-message and
// a stored notification to the receiver, message-sent echo to the
// sender. Shared by the live path and the REST send handler; the
// store's client-key idempotency makes double delivery a single
// stored message and a single fan-out.
func (h *hub) deliverMessage(message wire.Message) (wire.Message, bool) {
	stored, created := h.store.SaveMessage(message)
	if !created {
		return stored, false
	}

	h.sendTo(stored.ReceiverID, wire.EventReceiveMessage, stored)
	h.sendTo(stored.SenderID, wire.EventMessageSent, stored)

	notification := h.store.AddNotification(stored.ReceiverID,
		"New message", "New message from "+stored.SenderID)
	h.sendTo(stored.ReceiverID, wire.EventNewNotification, notification)

	return stored, true
}

func (h *hub) sendError(c *client, message string) {
	envelope, err := wire.NewEnvelope(wire.EventError, wire.ChannelError{Message: message})
	if err != nil {
		return
	}
	select {
	case c.send <- envelope:
	default:
	}
}
