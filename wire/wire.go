// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Live channel event names. Client-to-server events are emitted by the
// engine; server-to-client events arrive as pushes. The names are part
// of the backend contract and must not be changed.
const (
	// Client → server.
	EventJoin             = "join"
	EventLeave            = "leave"
	EventSendMessage      = "send-message"
	EventTyping           = "typing"
	EventMarkMessagesRead = "mark-messages-read"

	// Server → client.
	EventJoined              = "joined"
	EventUsersOnline         = "users-online"
	EventReceiveMessage      = "receive-message"
	EventMessageSent         = "message-sent"
	EventUserTyping          = "user-typing"
	EventNewNotification     = "new-notification"
	EventReceiveNotification = "receive-notification"
	EventMessagesRead        = "messages-read"
	EventError               = "error"
)

// Envelope is one live-channel frame: a named event and its payload.
// The payload is kept raw so the router can decode it against the
// type implied by the event name.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload and wraps it with the event name.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: encoding %q payload: %w", event, err)
	}
	return Envelope{Event: event, Payload: encoded}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("wire: event %q has no payload", e.Event)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("wire: decoding %q payload: %w", e.Event, err)
	}
	return nil
}

// DeliveryState tracks how far a sent message has progressed.
type DeliveryState string

const (
	// DeliveryPending: applied optimistically, no acknowledgement yet.
	DeliveryPending DeliveryState = "pending"
	// DeliverySent: the durable path confirmed persistence.
	DeliverySent DeliveryState = "sent"
	// DeliveryDelivered: the peer's client echoed receipt.
	DeliveryDelivered DeliveryState = "delivered"
)

// Message is one chat message. ID is issued by the server; a locally
// optimistic send has an empty ID and a non-empty ClientKey until the
// durable response or live echo supplies the authoritative ID.
type Message struct {
	ID         string        `json:"id,omitempty"`
	ClientKey  string        `json:"clientKey,omitempty"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	Content    string        `json:"content,omitempty"`
	Attachment string        `json:"attachment,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	State      DeliveryState `json:"state,omitempty"`
}

// Notification is one notification record. Read state is mutated
// optimistically on the client; the server copy is the source of truth
// on the next full load.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Subject   string    `json:"subject,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Peer is a chat partner as listed by the peer directory.
type Peer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarPath  string `json:"avatarPath,omitempty"`
}

// JoinRequest is the payload of EventJoin.
type JoinRequest struct {
	UserID string `json:"userId"`
}

// JoinAck is the payload of EventJoined: the join acknowledgement
// carrying the initial presence roster.
type JoinAck struct {
	UserID      string   `json:"userId"`
	OnlineUsers []string `json:"onlineUsers"`
}

// Roster is the payload of EventUsersOnline: the full set of online
// user IDs, broadcast wholesale. Receivers replace, never merge.
type Roster []string

// TypingEvent is the payload of EventTyping (outbound) and
// EventUserTyping (inbound).
type TypingEvent struct {
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	IsTyping   bool   `json:"isTyping"`
}

// ReadReceipt is the payload of EventMessagesRead: the peer identified
// by ReadBy has read the conversation up to Timestamp.
type ReadReceipt struct {
	ReadBy    string    `json:"readBy"`
	Timestamp time.Time `json:"timestamp"`
}

// MarkRead is the payload of EventMarkMessagesRead.
type MarkRead struct {
	SenderID string `json:"senderId"`
}

// Notice is the payload of EventReceiveNotification: a transient
// banner-style notice, distinct from a stored Notification.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChannelError is the payload of EventError.
type ChannelError struct {
	Message string `json:"message"`
}
