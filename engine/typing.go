// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/socialconnect/chatkit/lib/clock"
	"github.com/socialconnect/chatkit/wire"
)

// typingTracker holds the inbound typing fact: at most one "peer is
// typing to me" entry, with automatic expiry. The countdown defends
// against a dropped stop-typing event — a fact must never outlive its
// deadline, it is actively cleared. Loop-only.
type typingTracker struct {
	peer   string
	expiry time.Duration
	timer  *clock.Timer

	// seq invalidates expiry closures from superseded facts. A timer
	// fires on the clock's goroutine and reaches the loop as a
	// closure; by then the fact it belonged to may have been
	// replaced or cleared.
	seq uint64
}

// handleTypingEvent applies a pushed user-typing event. A true event
// records the fact and (re)arms the expiry countdown; a repeat within
// the window resets the countdown rather than stacking a second one.
// A false event clears immediately and cancels the countdown.
func (e *Engine) handleTypingEvent(senderID string, isTyping bool) {
	t := &e.typing
	if !isTyping {
		if t.peer == senderID {
			t.clear()
		}
		return
	}

	// Only the most recent typing peer is tracked: the UI shows a
	// single 1:1 conversation at a time.
	t.stopTimer()
	t.peer = senderID
	t.seq++
	seq := t.seq
	t.timer = e.clock.AfterFunc(t.expiry, func() {
		e.post(func() {
			if e.typing.seq == seq {
				e.typing.clear()
			}
		})
	})
}

// clear removes the fact and cancels any pending countdown.
func (t *typingTracker) clear() {
	t.peer = ""
	t.seq++
	t.stopTimer()
}

func (t *typingTracker) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// localTypingMirror tracks the local user's own keystroke activity.
// A burst of keystrokes emits typing=true exactly once; every further
// keystroke extends the idle countdown instead of re-emitting. When
// the countdown elapses (or a message is sent), typing=false goes out
// and the cycle can start again. Loop-only.
type localTypingMirror struct {
	active    bool
	idle      time.Duration
	idleTimer *clock.Timer
	seq       uint64
}

// NotifyTyping records local keystroke activity for the open
// conversation. The first call of a burst emits typing=true to the
// peer; calls within the idle window only extend the countdown.
func (e *Engine) NotifyTyping() error {
	result := make(chan error, 1)
	e.post(func() { result <- e.notifyTypingLocked() })
	select {
	case err := <-result:
		return err
	case <-e.done:
		return nil
	}
}

func (e *Engine) notifyTypingLocked() error {
	if e.conversation.peerID == "" {
		return ErrNoConversation
	}

	m := &e.localTyping
	if m.active {
		if m.idleTimer != nil {
			m.idleTimer.Reset(m.idle)
		}
		return nil
	}

	m.active = true
	m.seq++
	seq := m.seq
	e.dispatcher.emitTyping(e, e.conversation.peerID, true)
	m.idleTimer = e.clock.AfterFunc(m.idle, func() {
		e.post(func() {
			if e.localTyping.seq == seq {
				e.localTyping.stop(e, true)
			}
		})
	})
	return nil
}

// stop ends the outbound typing state. When emitFalse is set and a
// burst was active, typing=false is emitted to the peer.
func (m *localTypingMirror) stop(e *Engine, emitFalse bool) {
	wasActive := m.active
	m.active = false
	m.seq++
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
	if wasActive && emitFalse && e.conversation.peerID != "" {
		e.dispatcher.emitTyping(e, e.conversation.peerID, false)
	}
}

// emitTyping sends a typing-state change over the live channel. The
// emit is fire-and-forget: typing is pure latency candy and never
// affects correctness, so failures are only logged.
func (d *outboundDispatcher) emitTyping(e *Engine, peerID string, isTyping bool) {
	err := e.emit(wire.EventTyping, wire.TypingEvent{
		SenderID:   e.connection.identity.ID,
		ReceiverID: peerID,
		IsTyping:   isTyping,
	})
	if err != nil {
		d.logger.Debug("typing emit failed", "error", err)
	}
}
