// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/socialconnect/chatkit/wire"
)

// store is the devserver's in-memory persistence. Messages arrive on
// two paths (live channel and REST) carrying the same client key, so
// SaveMessage is idempotent on that key: both paths resolve to one
// stored message with one server ID.
type store struct {
	mu sync.Mutex

	messages    []wire.Message
	byClientKey map[string]int
	nextID      int

	notifications map[string][]wire.Notification
	peers         map[string]wire.Peer
}

func newStore() *store {
	return &store{
		byClientKey:   make(map[string]int),
		notifications: make(map[string][]wire.Notification),
		peers:         make(map[string]wire.Peer),
	}
}

// SaveMessage persists a message, assigning it a server ID and
// timestamp. A message whose client key was already saved returns the
// existing record with created=false.
func (s *store) SaveMessage(message wire.Message) (stored wire.Message, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.ClientKey != "" {
		if i, ok := s.byClientKey[message.ClientKey]; ok {
			return s.messages[i], false
		}
	}

	s.nextID++
	message.ID = fmt.Sprintf("msg-%d", s.nextID)
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.State == "" {
		message.State = wire.DeliverySent
	}

	s.messages = append(s.messages, message)
	if message.ClientKey != "" {
		s.byClientKey[message.ClientKey] = len(s.messages) - 1
	}
	return message, true
}

// History returns every message between the two users, oldest first.
func (s *store) History(userID, peerID string) []wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []wire.Message
	for _, message := range s.messages {
		if (message.SenderID == userID && message.ReceiverID == peerID) ||
			(message.SenderID == peerID && message.ReceiverID == userID) {
			out = append(out, message)
		}
	}
	return out
}

// MarkConversationRead upgrades every message the peer sent to the
// user to Delivered.
func (s *store) MarkConversationRead(userID, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].SenderID == peerID && s.messages[i].ReceiverID == userID {
			s.messages[i].State = wire.DeliveryDelivered
		}
	}
}

// AddNotification stores a notification for the user and returns it.
func (s *store) AddNotification(userID, subject, body string) wire.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification := wire.Notification{
		ID:        uuid.NewString(),
		Subject:   subject,
		Message:   body,
		CreatedAt: time.Now().UTC(),
	}
	s.notifications[userID] = append(s.notifications[userID], notification)
	return notification
}

// Notifications returns the user's notifications, newest first.
func (s *store) Notifications(userID string) []wire.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.notifications[userID]
	out := make([]wire.Notification, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
	}
	return out
}

// MarkNotificationRead flips one notification. Unknown IDs are a
// no-op: the client may be marking a notification another session
// already cleared.
func (s *store) MarkNotificationRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID := range s.notifications {
		for i := range s.notifications[userID] {
			if s.notifications[userID][i].ID == id {
				s.notifications[userID][i].Read = true
				return
			}
		}
	}
}

// MarkAllNotificationsRead flips every notification of the user.
func (s *store) MarkAllNotificationsRead(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications[userID] {
		s.notifications[userID][i].Read = true
	}
}

// RegisterPeer records a user in the directory. Users register by
// joining the live channel; the directory survives disconnects.
func (s *store) RegisterPeer(peer wire.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[peer.ID] = peer
}

// Peers returns the user directory.
func (s *store) Peers() []wire.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]wire.Peer, 0, len(s.peers))
	for _, peer := range s.peers {
		out = append(out, peer)
	}
	return out
}
