// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/socialconnect/chatkit/wire"
)

// DialConfig holds configuration for opening a websocket channel.
type DialConfig struct {
	// URL is the websocket endpoint (e.g., "ws://localhost:3001/channel").
	URL string
	// Token is the bearer token presented during the handshake.
	Token string
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// writeTimeout bounds each outbound frame write so a stalled peer
// cannot wedge Emit callers forever.
const writeTimeout = 10 * time.Second

// eventBuffer is the capacity of the inbound event channel. Bounded so
// a consumer that stops draining exerts backpressure on the read pump
// instead of growing without limit.
const eventBuffer = 64

// Dial opens a websocket live channel. The returned Conn's Events
// channel closes when the server closes the connection, the context is
// cancelled, or Close is called.
func Dial(ctx context.Context, config DialConfig) (Conn, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("channel: URL is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	if config.Token != "" {
		header.Set("Authorization", "Bearer "+config.Token)
	}

	conn, response, err := websocket.DefaultDialer.DialContext(ctx, config.URL, header)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("channel: dialing %s (status %d): %w", config.URL, response.StatusCode, err)
		}
		return nil, fmt.Errorf("channel: dialing %s: %w", config.URL, err)
	}

	wsConn := &websocketConn{
		conn:   conn,
		logger: logger,
		events: make(chan wire.Envelope, eventBuffer),
	}
	go wsConn.readPump()
	return wsConn, nil
}

type websocketConn struct {
	conn   *websocket.Conn
	logger *slog.Logger
	events chan wire.Envelope

	writeMu sync.Mutex // gorilla allows one concurrent writer

	closeOnce sync.Once
	closeErr  error
}

func (c *websocketConn) Emit(event string, payload any) error {
	envelope, err := wire.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("channel: encoding envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
		return fmt.Errorf("channel: emitting %q: %w", event, err)
	}
	return nil
}

func (c *websocketConn) Events() <-chan wire.Envelope {
	return c.events
}

func (c *websocketConn) Close() error {
	c.closeOnce.Do(func() {
		// Best-effort close frame so the server can distinguish a
		// deliberate leave from a dropped connection.
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// readPump reads frames until the connection dies, decoding each into
// an envelope. Malformed frames are logged and skipped rather than
// killing the connection — one bad payload must not take down the
// whole channel.
func (c *websocketConn) readPump() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("live channel read failed", "error", err)
			}
			return
		}

		var envelope wire.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.logger.Warn("dropping malformed channel frame", "error", err)
			continue
		}
		if envelope.Event == "" {
			c.logger.Warn("dropping channel frame without event name")
			continue
		}
		c.events <- envelope
	}
}
