// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/socialconnect/chatkit/channel"
	"github.com/socialconnect/chatkit/wire"
)

// ConnectionState is the live channel lifecycle state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateJoined       ConnectionState = "joined"
	StateClosing      ConnectionState = "closing"
)

// connectionManager owns the one live channel of the session. All
// fields are loop-only. gen increments on every teardown so that
// envelopes, dial completions, and fetches belonging to a previous
// connection are discarded instead of mutating fresh state.
type connectionManager struct {
	state      ConnectionState
	identity   Identity
	credential string
	conn       channel.Conn
	gen        uint64

	// cancel aborts the dial and the connection-scoped fetches
	// (initial notification load).
	cancel context.CancelFunc
}

// Connect opens the live channel for the identity. Idempotent while a
// connection for the same identity is already joined or connecting. A
// different identity tears the old channel down completely before the
// new dial starts, so the two connections can never cross-talk.
//
// Connect returns once the attempt is scheduled; progress is observed
// through ConnectionState. Dial failures are surfaced as an "error"
// notice and leave the engine Disconnected — reconnection is the
// caller's decision, typically by invoking Connect again while the
// identity is still present.
func (e *Engine) Connect(identity Identity, credential string) error {
	if identity.ID == "" {
		return errMissingIdentity
	}
	e.post(func() { e.connectLocked(identity, credential) })
	return nil
}

// connectLocked runs on the loop.
func (e *Engine) connectLocked(identity Identity, credential string) {
	if e.connection.identity.ID == identity.ID {
		switch e.connection.state {
		case StateJoined, StateConnecting:
			// Already live (or becoming live) for this identity.
			return
		}
	} else if e.connection.state != StateDisconnected {
		// Rapid account switch: fully close the old channel first.
		e.teardownConnection()
	}

	e.connection.state = StateConnecting
	e.connection.identity = identity
	e.connection.credential = credential
	e.connection.gen++
	gen := e.connection.gen

	connCtx, cancel := context.WithCancel(e.baseCtx)
	e.connection.cancel = cancel

	e.logger.Info("connecting live channel", "user_id", identity.ID)

	go func() {
		conn, err := e.dial(connCtx, identity, credential)
		e.post(func() { e.finishDial(gen, conn, err) })
	}()
}

// finishDial attaches the dialed connection, or reports the failure.
// Loop-only.
func (e *Engine) finishDial(gen uint64, conn channel.Conn, err error) {
	if gen != e.connection.gen || e.connection.state != StateConnecting {
		// The connection this dial belonged to is gone.
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		e.logger.Warn("live channel dial failed", "error", err)
		e.connection.state = StateDisconnected
		e.connection.cancel()
		e.notice("error", "connection failed")
		return
	}

	e.connection.conn = conn
	e.forwardEvents(gen, conn)

	if err := conn.Emit(wire.EventJoin, wire.JoinRequest{UserID: e.connection.identity.ID}); err != nil {
		e.logger.Warn("join emit failed", "error", err)
		e.teardownConnection()
		e.notice("error", "connection failed")
	}
}

// forwardEvents pumps the connection's inbound envelopes onto the
// loop. The goroutine exits when the connection's Events channel
// closes; the final closure reports the closure to the loop.
func (e *Engine) forwardEvents(gen uint64, conn channel.Conn) {
	go func() {
		for envelope := range conn.Events() {
			envelope := envelope
			e.post(func() { e.route(gen, envelope) })
		}
		e.post(func() { e.handleChannelClosed(gen) })
	}()
}

// handleJoined completes the join handshake: the acknowledgement
// carries the initial presence roster, and each new connection loads
// notifications once.
func (e *Engine) handleJoined(ack wire.JoinAck) {
	if e.connection.state != StateConnecting {
		return
	}
	e.connection.state = StateJoined
	e.presence.replace(ack.OnlineUsers)
	e.logger.Info("joined live channel",
		"user_id", e.connection.identity.ID,
		"online", len(ack.OnlineUsers),
	)

	e.loadNotifications()
}

// handleChannelClosed reacts to the transport dying underneath a live
// connection. Per-connection state is cleared; notifications and any
// fetched history survive for the next connect.
func (e *Engine) handleChannelClosed(gen uint64) {
	if gen != e.connection.gen {
		return
	}
	e.logger.Warn("live channel closed", "user_id", e.connection.identity.ID)
	e.teardownConnection()
	// A dead live channel often means the network path itself went
	// away. Flush pooled REST connections so the next durable request
	// dials fresh instead of riding a stale keep-alive.
	e.backend.CloseIdleConnections()
	e.notice("error", "connection lost")
}

// Disconnect gracefully leaves and closes the live channel. Presence
// and typing state are cleared; the notification store and the active
// timeline survive a reconnect. Idempotent.
func (e *Engine) Disconnect() {
	e.post(func() {
		if e.connection.state == StateDisconnected {
			return
		}
		e.connection.state = StateClosing
		if e.connection.conn != nil {
			// Best-effort leave so the server drops us from rosters
			// immediately instead of waiting for the socket to die.
			if err := e.connection.conn.Emit(wire.EventLeave, nil); err != nil {
				e.logger.Debug("leave emit failed", "error", err)
			}
		}
		e.teardownConnection()
	})
}

// teardownConnection closes the channel and clears all per-connection
// state. Loop-only. Safe to call in any state.
func (e *Engine) teardownConnection() {
	if e.connection.cancel != nil {
		e.connection.cancel()
		e.connection.cancel = nil
	}
	if e.connection.conn != nil {
		e.connection.conn.Close()
		e.connection.conn = nil
	}
	e.connection.gen++
	e.connection.state = StateDisconnected

	e.presence.clear()
	e.typing.clear()
	e.localTyping.stop(e, false)
}

// emit sends a named event on the live channel, if one is attached.
// Loop-only.
func (e *Engine) emit(event string, payload any) error {
	if e.connection.conn == nil {
		return errNotConnected
	}
	return e.connection.conn.Emit(event, payload)
}
