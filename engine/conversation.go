// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/socialconnect/chatkit/wire"
)

// fallbackMatchWindow bounds the timestamp distance for matching a
// server echo against a pending optimistic send when neither a server
// ID nor a client key lines up. Wide enough for clock skew between
// client and server, narrow enough that two deliberate identical
// sends a few seconds apart stay separate messages.
const fallbackMatchWindow = 5 * time.Second

// conversationSync holds the one active conversation timeline. Only
// the open conversation is kept — timelines for other peers are
// discarded to bound memory. Loop-only.
type conversationSync struct {
	peerID   string
	timeline []wire.Message
	loading  bool

	// gen invalidates history fetches and send merges belonging to a
	// conversation that has since been closed or switched.
	gen    uint64
	cancel context.CancelFunc
}

// OpenConversation makes peerID the active conversation: the prior
// timeline is discarded, a history fetch starts, and the conversation
// is marked read on both paths (durable request plus live event, so
// the peer's read receipts arrive with push latency).
//
// Pushed messages for the peer that arrive while the fetch is in
// flight are applied immediately and reconciled against the fetched
// history by ID when it lands. A fetch that resolves after the
// conversation was closed or switched is discarded whole.
func (e *Engine) OpenConversation(peerID string) error {
	if peerID == "" {
		return ErrNoConversation
	}
	e.post(func() { e.openConversationLocked(peerID) })
	return nil
}

func (e *Engine) openConversationLocked(peerID string) {
	// End any outbound typing burst aimed at the previous peer.
	e.localTyping.stop(e, true)

	c := &e.conversation
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	c.peerID = peerID
	c.timeline = nil
	c.loading = true
	gen := c.gen

	ctx, cancel := context.WithCancel(e.baseCtx)
	c.cancel = cancel

	go func() {
		history, err := e.backend.History(ctx, peerID)
		e.post(func() { e.finishHistory(gen, history, err) })
	}()

	// Opening a conversation is reading it.
	go func() {
		if err := e.backend.MarkConversationRead(ctx, peerID); err != nil {
			e.logger.Warn("durable mark-conversation-read failed", "peer_id", peerID, "error", err)
		}
	}()
	if err := e.emit(wire.EventMarkMessagesRead, wire.MarkRead{SenderID: peerID}); err != nil {
		e.logger.Debug("mark-messages-read emit failed", "error", err)
	}
}

// finishHistory installs a resolved history fetch. Loop-only. Pushes
// that raced the fetch are already in the timeline; they are folded
// into the fetched history with the same idempotent merge used for
// live events, so a message present in both copies appears once.
func (e *Engine) finishHistory(gen uint64, history []wire.Message, err error) {
	c := &e.conversation
	if gen != c.gen {
		// The conversation this fetch belonged to is gone. Its
		// result must not touch the now-active timeline.
		return
	}
	c.loading = false

	if err != nil {
		e.logger.Warn("history fetch failed", "peer_id", c.peerID, "error", err)
		e.notice("error", "failed to load messages")
		return
	}

	buffered := c.timeline
	c.timeline = slices.Clone(history)
	for _, message := range buffered {
		e.mergeMessage(message)
	}
}

// CloseConversation discards the active timeline and cancels its
// in-flight fetches. The notification store and presence are
// untouched.
func (e *Engine) CloseConversation() {
	e.post(func() {
		e.localTyping.stop(e, true)

		c := &e.conversation
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.gen++
		c.peerID = ""
		c.timeline = nil
		c.loading = false
	})
}

// SendMessage sends a message to the open conversation's peer on both
// paths: an immediate live-channel emit for latency and a durable
// persisted send for correctness. The message appears in the timeline
// optimistically with Pending state before either path resolves.
//
// The returned channel resolves once the durable path does — with nil
// on persistence, or the request error. The live emit is
// fire-and-forget and never affects the completion. An empty message
// (no text, no attachment) is rejected locally with ErrEmptyMessage
// before any network call.
func (e *Engine) SendMessage(text, attachment string) (<-chan error, error) {
	text = strings.TrimSpace(text)
	if text == "" && attachment == "" {
		return nil, ErrEmptyMessage
	}

	accepted := make(chan error, 1)
	completion := make(chan error, 1)
	if !e.post(func() { accepted <- e.sendMessageLocked(text, attachment, completion) }) {
		return nil, errNotConnected
	}
	select {
	case err := <-accepted:
		if err != nil {
			return nil, err
		}
		return completion, nil
	case <-e.done:
		return nil, errNotConnected
	}
}

func (e *Engine) sendMessageLocked(text, attachment string, completion chan<- error) error {
	if e.conversation.peerID == "" {
		return ErrNoConversation
	}

	// Sending ends the typing burst — the peer sees the message, not
	// a stale indicator.
	e.localTyping.stop(e, true)

	message := wire.Message{
		ClientKey:  uuid.NewString(),
		SenderID:   e.connection.identity.ID,
		ReceiverID: e.conversation.peerID,
		Content:    text,
		Attachment: attachment,
		CreatedAt:  e.clock.Now(),
		State:      wire.DeliveryPending,
	}
	e.conversation.timeline = append(e.conversation.timeline, message)

	e.dispatcher.send(e, message, completion)
	return nil
}

// mergeIncoming applies a pushed message from a peer. Messages for
// conversations that are not open are dropped — their timelines do
// not exist.
func (e *Engine) mergeIncoming(message wire.Message) {
	c := &e.conversation
	if c.peerID == "" {
		return
	}
	if message.SenderID != c.peerID && message.ReceiverID != c.peerID {
		return
	}
	e.mergeMessage(message)
}

// mergeOwn applies an echo of the local user's own send: either the
// live channel's message-sent event or the durable response. Both
// carry the server-issued ID; whichever arrives second merges into
// the entry the first one produced. Echoes for a conversation that
// has since been closed or switched are dropped, same as incoming
// pushes.
func (e *Engine) mergeOwn(message wire.Message) {
	c := &e.conversation
	if c.peerID == "" {
		return
	}
	if message.SenderID != c.peerID && message.ReceiverID != c.peerID {
		return
	}
	e.mergeMessage(message)
}

// mergeMessage reconciles one message representation into the
// timeline. Match order: server ID, then client key, then the
// (sender, receiver, content, approximate-timestamp) fallback for
// representations carrying neither. No match appends.
func (e *Engine) mergeMessage(incoming wire.Message) {
	c := &e.conversation

	if incoming.ID != "" {
		for i := range c.timeline {
			if c.timeline[i].ID == incoming.ID {
				adoptMessage(&c.timeline[i], incoming)
				return
			}
		}
	}

	if incoming.ClientKey != "" {
		for i := range c.timeline {
			if c.timeline[i].ClientKey == incoming.ClientKey {
				adoptMessage(&c.timeline[i], incoming)
				return
			}
		}
	}

	// Fallback heuristic for echoes that predate client keys: match
	// a still-pending local send by content tuple and rough time.
	if incoming.ID != "" {
		for i := range c.timeline {
			entry := &c.timeline[i]
			if entry.ID != "" {
				continue
			}
			if entry.SenderID != incoming.SenderID ||
				entry.ReceiverID != incoming.ReceiverID ||
				entry.Content != incoming.Content {
				continue
			}
			delta := entry.CreatedAt.Sub(incoming.CreatedAt)
			if delta < -fallbackMatchWindow || delta > fallbackMatchWindow {
				continue
			}
			adoptMessage(entry, incoming)
			return
		}
	}

	c.timeline = append(c.timeline, incoming)
}

// adoptMessage folds an authoritative representation into an existing
// entry: the server ID and timestamp win, the delivery state only
// ever advances.
func adoptMessage(entry *wire.Message, incoming wire.Message) {
	if incoming.ID != "" {
		entry.ID = incoming.ID
	}
	if incoming.ClientKey != "" && entry.ClientKey == "" {
		entry.ClientKey = incoming.ClientKey
	}
	if !incoming.CreatedAt.IsZero() {
		entry.CreatedAt = incoming.CreatedAt
	}
	if incoming.Attachment != "" {
		entry.Attachment = incoming.Attachment
	}
	if deliveryRank(incoming.State) > deliveryRank(entry.State) {
		entry.State = incoming.State
	}
}

// deliveryRank orders delivery states so merges never regress one.
func deliveryRank(state wire.DeliveryState) int {
	switch state {
	case wire.DeliverySent:
		return 2
	case wire.DeliveryDelivered:
		return 3
	case wire.DeliveryPending:
		return 1
	default:
		return 0
	}
}

// applyReadReceipt upgrades the local user's messages to Delivered
// when the open conversation's peer reports having read them.
func (e *Engine) applyReadReceipt(receipt wire.ReadReceipt) {
	c := &e.conversation
	if c.peerID == "" || receipt.ReadBy != c.peerID {
		return
	}
	me := e.connection.identity.ID
	for i := range c.timeline {
		if c.timeline[i].SenderID != me {
			continue
		}
		if deliveryRank(wire.DeliveryDelivered) > deliveryRank(c.timeline[i].State) {
			c.timeline[i].State = wire.DeliveryDelivered
		}
	}
}

func (c *conversationSync) snapshot() []wire.Message {
	return slices.Clone(c.timeline)
}
