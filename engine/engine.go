// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/socialconnect/chatkit/backend"
	"github.com/socialconnect/chatkit/channel"
	"github.com/socialconnect/chatkit/lib/clock"
	"github.com/socialconnect/chatkit/wire"
)

// Identity is the authenticated user of a session. Immutable for the
// lifetime of a connection; a different identity means a new channel.
type Identity struct {
	ID          string
	DisplayName string
	AvatarPath  string
}

// Dialer opens a live channel for an identity. Production wiring uses
// channel.Dial; tests hand out the client end of a channel.MemoryPair.
type Dialer func(ctx context.Context, identity Identity, credential string) (channel.Conn, error)

// Config holds the collaborators an Engine is built from.
type Config struct {
	// Backend is the durable request client. Required.
	Backend *backend.Client

	// Dial opens the live channel. Required.
	Dial Dialer

	// Clock drives typing expiry and timestamps. Nil means clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Nil means slog.Default().
	Logger *slog.Logger

	// Notifier displays system notifications for pushed notification
	// records. Nil disables system notifications.
	Notifier Notifier

	// OnNotice, when non-nil, receives transient banner notices (new
	// message arrived, channel error). Called from the engine loop;
	// it must not block and must not call back into the Engine.
	OnNotice func(wire.Notice)

	// TypingExpiry is how long a peer's typing fact stays visible
	// without a follow-up event. Zero means 3 seconds.
	TypingExpiry time.Duration

	// TypingIdle is the local keystroke pause that ends the outbound
	// typing state. Zero means 1 second.
	TypingIdle time.Duration
}

// Defaults for Config.TypingExpiry and Config.TypingIdle.
const (
	defaultTypingExpiry = 3 * time.Second
	defaultTypingIdle   = 1 * time.Second
)

// callBuffer is the capacity of the loop mailbox. Sized so bursts of
// pushed events do not stall the channel reader while the loop works
// through a fetch completion.
const callBuffer = 128

// Engine is one client session's synchronization core. Create with
// New, release with Close. All exported methods are safe for
// concurrent use.
type Engine struct {
	backend  *backend.Client
	dial     Dialer
	clock    clock.Clock
	logger   *slog.Logger
	notifier Notifier
	onNotice func(wire.Notice)

	calls chan func()
	done  chan struct{}

	// baseCtx is cancelled by Close, cutting off every in-flight
	// durable request.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	// Everything below is owned by the loop goroutine.
	connection    connectionManager
	presence      presenceTracker
	typing        typingTracker
	localTyping   localTypingMirror
	notifications notificationStore
	conversation  conversationSync
	dispatcher    outboundDispatcher
}

// New creates an Engine and starts its event loop.
func New(config Config) (*Engine, error) {
	if config.Backend == nil {
		return nil, fmt.Errorf("engine: Backend is required")
	}
	if config.Dial == nil {
		return nil, fmt.Errorf("engine: Dial is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	typingExpiry := config.TypingExpiry
	if typingExpiry == 0 {
		typingExpiry = defaultTypingExpiry
	}
	typingIdle := config.TypingIdle
	if typingIdle == 0 {
		typingIdle = defaultTypingIdle
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	e := &Engine{
		backend:    config.Backend,
		dial:       config.Dial,
		clock:      clk,
		logger:     logger,
		notifier:   config.Notifier,
		onNotice:   config.OnNotice,
		calls:      make(chan func(), callBuffer),
		done:       make(chan struct{}),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	e.connection.state = StateDisconnected
	e.typing.expiry = typingExpiry
	e.localTyping.idle = typingIdle
	e.dispatcher.backend = config.Backend
	e.dispatcher.logger = logger

	go e.run()
	return e, nil
}

// run is the event loop: the single logical thread of control for this
// session. It drains the mailbox until Close.
func (e *Engine) run() {
	for {
		select {
		case f := <-e.calls:
			f()
		case <-e.baseCtx.Done():
			e.teardownConnection()
			close(e.done)
			return
		}
	}
}

// post schedules f on the event loop. Reports false when the engine
// has shut down — a late timer or fetch completion after Close has
// nothing left to mutate and is dropped.
func (e *Engine) post(f func()) bool {
	select {
	case e.calls <- f:
		return true
	case <-e.done:
		return false
	}
}

// call runs f on the event loop and waits for it. Used by the read
// accessors so snapshots are always taken between, never during,
// event handlers.
func (e *Engine) call(f func()) {
	ran := make(chan struct{})
	select {
	case e.calls <- func() {
		f()
		close(ran)
	}:
	case <-e.done:
		return
	}
	select {
	case <-ran:
	case <-e.done:
	}
}

// Close tears down the connection, cancels in-flight requests, and
// stops the event loop. Idempotent.
func (e *Engine) Close() error {
	e.baseCancel()
	<-e.done
	return nil
}

// notice forwards a transient banner notice to the UI surface.
// Loop-only.
func (e *Engine) notice(kind, message string) {
	if e.onNotice == nil {
		return
	}
	e.onNotice(wire.Notice{Type: kind, Message: message})
}

// route applies one live-channel envelope. Loop-only. gen guards
// against envelopes from a torn-down connection racing a new one.
func (e *Engine) route(gen uint64, envelope wire.Envelope) {
	if gen != e.connection.gen {
		return
	}

	switch envelope.Event {
	case wire.EventJoined:
		var ack wire.JoinAck
		if err := envelope.Decode(&ack); err != nil {
			e.logger.Warn("discarding malformed join ack", "error", err)
			return
		}
		e.handleJoined(ack)

	case wire.EventUsersOnline:
		var roster wire.Roster
		if err := envelope.Decode(&roster); err != nil {
			e.logger.Warn("discarding malformed roster", "error", err)
			return
		}
		e.presence.replace(roster)

	case wire.EventUserTyping:
		var typing wire.TypingEvent
		if err := envelope.Decode(&typing); err != nil {
			e.logger.Warn("discarding malformed typing event", "error", err)
			return
		}
		e.handleTypingEvent(typing.SenderID, typing.IsTyping)

	case wire.EventReceiveMessage:
		var message wire.Message
		if err := envelope.Decode(&message); err != nil {
			e.logger.Warn("discarding malformed message", "error", err)
			return
		}
		e.handleReceiveMessage(message)

	case wire.EventMessageSent:
		var message wire.Message
		if err := envelope.Decode(&message); err != nil {
			e.logger.Warn("discarding malformed send echo", "error", err)
			return
		}
		// The live echo means the server relayed the message to the
		// peer's connection.
		if message.State == "" {
			message.State = wire.DeliveryDelivered
		}
		e.mergeOwn(message)

	case wire.EventNewNotification:
		var notification wire.Notification
		if err := envelope.Decode(&notification); err != nil {
			e.logger.Warn("discarding malformed notification", "error", err)
			return
		}
		e.handleNewNotification(notification)

	case wire.EventReceiveNotification:
		var notice wire.Notice
		if err := envelope.Decode(&notice); err != nil {
			e.logger.Warn("discarding malformed notice", "error", err)
			return
		}
		if e.onNotice != nil {
			e.onNotice(notice)
		}

	case wire.EventMessagesRead:
		var receipt wire.ReadReceipt
		if err := envelope.Decode(&receipt); err != nil {
			e.logger.Warn("discarding malformed read receipt", "error", err)
			return
		}
		e.applyReadReceipt(receipt)

	case wire.EventError:
		var channelErr wire.ChannelError
		if err := envelope.Decode(&channelErr); err != nil {
			channelErr.Message = "connection error"
		}
		e.logger.Warn("live channel reported error", "message", channelErr.Message)
		e.notice("error", channelErr.Message)

	default:
		e.logger.Debug("ignoring unknown channel event", "event", envelope.Event)
	}
}

// handleReceiveMessage applies a pushed message from a peer: merged
// into the timeline when its conversation is open, always surfaced as
// a notice.
func (e *Engine) handleReceiveMessage(message wire.Message) {
	e.mergeIncoming(message)

	from := message.SenderID
	e.notice("message", "New message from "+from)
}

// handleNewNotification inserts a pushed notification and, when
// something was actually inserted, shows a system notification.
func (e *Engine) handleNewNotification(notification wire.Notification) {
	if !e.notifications.push(notification) {
		return
	}
	if e.notifier != nil {
		e.notifier.Show("Social Connect", notification.Message)
	}
}

// --- Read accessors -------------------------------------------------

// ConnectionState reports the live channel lifecycle state.
func (e *Engine) ConnectionState() ConnectionState {
	var state ConnectionState = StateDisconnected
	e.call(func() { state = e.connection.state })
	return state
}

// OnlineUsers returns the identity IDs currently online.
func (e *Engine) OnlineUsers() []string {
	var users []string
	e.call(func() { users = e.presence.snapshot() })
	return users
}

// IsOnline reports whether the given identity is in the presence set.
func (e *Engine) IsOnline(id string) bool {
	var online bool
	e.call(func() { online = e.presence.isOnline(id) })
	return online
}

// TypingPeer returns the identity currently typing to the local user,
// or "" when nobody is.
func (e *Engine) TypingPeer() string {
	var peer string
	e.call(func() { peer = e.typing.peer })
	return peer
}

// Notifications returns the notification list, newest first, and the
// unread count.
func (e *Engine) Notifications() ([]wire.Notification, int) {
	var (
		list   []wire.Notification
		unread int
	)
	e.call(func() {
		list = e.notifications.snapshot()
		unread = e.notifications.unread
	})
	return list, unread
}

// Timeline returns a copy of the active conversation's messages in
// chronological order, plus whether the history fetch is still in
// flight. Empty and false when no conversation is open.
func (e *Engine) Timeline() ([]wire.Message, bool) {
	var (
		messages []wire.Message
		loading  bool
	)
	e.call(func() {
		messages = e.conversation.snapshot()
		loading = e.conversation.loading
	})
	return messages, loading
}

// ActivePeer returns the peer of the open conversation, or "".
func (e *Engine) ActivePeer() string {
	var peer string
	e.call(func() { peer = e.conversation.peerID })
	return peer
}
