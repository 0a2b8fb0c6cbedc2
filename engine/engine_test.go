// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/socialconnect/chatkit/backend"
	"github.com/socialconnect/chatkit/channel"
	"github.com/socialconnect/chatkit/lib/clock"
	"github.com/socialconnect/chatkit/lib/testutil"
	"github.com/socialconnect/chatkit/wire"
)

var testIdentity = Identity{ID: "u1", DisplayName: "Uma"}

// fakeAPI is an in-memory durable backend for engine tests. Handlers
// record every write so tests can assert the durable path was (or was
// not) exercised.
type fakeAPI struct {
	mu sync.Mutex

	notifications []wire.Notification
	history       map[string][]wire.Message

	// historyGate, when set for a peer, blocks that peer's history
	// fetch until the channel is closed. Used to hold a fetch in
	// flight while pushes arrive.
	historyGate map[string]chan struct{}

	failSend     bool
	failMarkRead bool
	sendGate     chan struct{}

	sendCalls     []backend.SendMessageRequest
	markReadCalls []string
	markAllCalls  int
	convReadCalls []string
	nextServerID  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history:     make(map[string][]wire.Message),
		historyGate: make(map[string]chan struct{}),
	}
}

func (a *fakeAPI) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	path := request.URL.Path
	switch {
	case strings.HasPrefix(path, "/notifications/user/") && strings.HasSuffix(path, "/read-all"):
		a.mu.Lock()
		a.markAllCalls++
		a.mu.Unlock()
		writeOK(writer)

	case strings.HasPrefix(path, "/notifications/") && strings.HasSuffix(path, "/read"):
		a.mu.Lock()
		fail := a.failMarkRead
		if !fail {
			id := strings.TrimSuffix(strings.TrimPrefix(path, "/notifications/"), "/read")
			a.markReadCalls = append(a.markReadCalls, id)
		}
		a.mu.Unlock()
		if fail {
			writeError(writer, http.StatusInternalServerError, "mark-read rejected")
			return
		}
		writeOK(writer)

	case strings.HasPrefix(path, "/notifications/"):
		a.mu.Lock()
		list := append([]wire.Notification(nil), a.notifications...)
		a.mu.Unlock()
		writeJSON(writer, list)

	case path == "/chat/send":
		var req backend.SendMessageRequest
		if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
			writeError(writer, http.StatusBadRequest, "bad send body")
			return
		}
		a.mu.Lock()
		a.sendCalls = append(a.sendCalls, req)
		gate := a.sendGate
		fail := a.failSend
		a.nextServerID++
		id := fmt.Sprintf("srv-%d", a.nextServerID)
		a.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if fail {
			writeError(writer, http.StatusInternalServerError, "send rejected")
			return
		}
		writeJSON(writer, wire.Message{
			ID:         id,
			ClientKey:  req.ClientKey,
			SenderID:   testIdentity.ID,
			ReceiverID: req.ReceiverID,
			Content:    req.Content,
			Attachment: req.Attachment,
			CreatedAt:  time.Now().UTC(),
		})

	case strings.HasPrefix(path, "/chat/messages/") && strings.HasSuffix(path, "/read"):
		peer := strings.TrimSuffix(strings.TrimPrefix(path, "/chat/messages/"), "/read")
		a.mu.Lock()
		a.convReadCalls = append(a.convReadCalls, peer)
		a.mu.Unlock()
		writeOK(writer)

	case strings.HasPrefix(path, "/chat/messages/"):
		peer := strings.TrimPrefix(path, "/chat/messages/")
		a.mu.Lock()
		gate := a.historyGate[peer]
		a.mu.Unlock()
		if gate != nil {
			<-gate
		}
		a.mu.Lock()
		list := append([]wire.Message(nil), a.history[peer]...)
		a.mu.Unlock()
		writeJSON(writer, list)

	case path == "/chat/users":
		writeJSON(writer, []wire.Peer{{ID: "u2", DisplayName: "Ada"}})

	default:
		writeError(writer, http.StatusNotFound, "no route for "+path)
	}
}

func (a *fakeAPI) sends() []backend.SendMessageRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]backend.SendMessageRequest(nil), a.sendCalls...)
}

func (a *fakeAPI) readMarks() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.markReadCalls...)
}

func (a *fakeAPI) convReads() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.convReadCalls...)
}

func writeJSON(writer http.ResponseWriter, v any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(v)
}

func writeOK(writer http.ResponseWriter) {
	writeJSON(writer, map[string]bool{"success": true})
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(backend.Error{Message: message})
}

// recordingNotifier captures system notification calls.
type recordingNotifier struct {
	mu    sync.Mutex
	shown []string
}

func (n *recordingNotifier) Show(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, body)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.shown)
}

// countingTransport counts idle-connection flushes so tests can
// observe the engine forcing fresh REST connections.
type countingTransport struct {
	base    http.RoundTripper
	flushes atomic.Int32
}

func (c *countingTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	return c.base.RoundTrip(request)
}

func (c *countingTransport) CloseIdleConnections() {
	c.flushes.Add(1)
	if closer, ok := c.base.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

// fixture wires an Engine to a fake durable backend, a memory live
// channel, and a fake clock.
type fixture struct {
	t         *testing.T
	engine    *Engine
	api       *fakeAPI
	clk       *clock.FakeClock
	notifier  *recordingNotifier
	transport *countingTransport

	// server is the backend's end of the current live channel pair,
	// set by join.
	server *channel.MemoryConn

	// dials receives the server end of every channel the engine
	// dials.
	dials chan *channel.MemoryConn

	// notices receives every banner notice the engine surfaces.
	notices chan wire.Notice

	failDial   bool
	barrierSeq int
	mu         sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:         t,
		api:       newFakeAPI(),
		clk:       clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		notifier:  &recordingNotifier{},
		transport: &countingTransport{base: http.DefaultTransport},
		dials:     make(chan *channel.MemoryConn, 4),
		notices:   make(chan wire.Notice, 64),
	}

	server := httptest.NewServer(f.api)
	t.Cleanup(server.Close)

	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: &http.Client{Transport: f.transport},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	engine, err := New(Config{
		Backend: client,
		Dial: func(ctx context.Context, identity Identity, credential string) (channel.Conn, error) {
			f.mu.Lock()
			fail := f.failDial
			f.mu.Unlock()
			if fail {
				return nil, fmt.Errorf("dial refused")
			}
			clientEnd, serverEnd := channel.MemoryPair()
			f.dials <- serverEnd
			return clientEnd, nil
		},
		Clock:    f.clk,
		Notifier: f.notifier,
		OnNotice: func(notice wire.Notice) {
			select {
			case f.notices <- notice:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	f.engine = engine
	return f
}

// join connects as the test identity and completes the handshake with
// the given initial roster.
func (f *fixture) join(roster ...string) {
	f.t.Helper()
	if err := f.engine.Connect(testIdentity, "credential"); err != nil {
		f.t.Fatalf("Connect failed: %v", err)
	}
	f.server = testutil.RequireReceive(f.t, f.dials, 5*time.Second, "waiting for dial")

	envelope := testutil.RequireReceive(f.t, f.server.Events(), 5*time.Second, "waiting for join")
	if envelope.Event != wire.EventJoin {
		f.t.Fatalf("first event = %q, want %q", envelope.Event, wire.EventJoin)
	}
	var join wire.JoinRequest
	if err := envelope.Decode(&join); err != nil {
		f.t.Fatalf("decoding join: %v", err)
	}
	if join.UserID != testIdentity.ID {
		f.t.Fatalf("join user = %q, want %q", join.UserID, testIdentity.ID)
	}

	if err := f.server.Emit(wire.EventJoined, wire.JoinAck{UserID: testIdentity.ID, OnlineUsers: roster}); err != nil {
		f.t.Fatalf("emitting joined: %v", err)
	}
	f.waitFor(func() bool { return f.engine.ConnectionState() == StateJoined }, "engine never joined")
}

// push emits a server event on the current live channel.
func (f *fixture) push(event string, payload any) {
	f.t.Helper()
	if err := f.server.Emit(event, payload); err != nil {
		f.t.Fatalf("pushing %s: %v", event, err)
	}
}

// openConversation opens the peer and waits for the history fetch to
// settle (unless a gate is holding it).
func (f *fixture) openConversation(peerID string) {
	f.t.Helper()
	if err := f.engine.OpenConversation(peerID); err != nil {
		f.t.Fatalf("OpenConversation failed: %v", err)
	}
}

// pushBarrier waits until every envelope pushed so far has been
// routed. Envelopes are processed in order, so a roster push with a
// marker ID landing in presence proves everything before it landed
// too. The extra IDs keep any peers the test cares about online.
func (f *fixture) pushBarrier(online ...string) {
	f.t.Helper()
	f.barrierSeq++
	marker := fmt.Sprintf("barrier-%d", f.barrierSeq)
	f.push(wire.EventUsersOnline, wire.Roster(append(append([]string{}, online...), marker)))
	f.waitFor(func() bool { return f.engine.IsOnline(marker) }, "barrier %s never processed", marker)
}

// waitFor polls condition until it holds or the timeout elapses. The
// engine applies events asynchronously on its loop, so tests assert on
// eventually-stable state instead of sequencing internals.
func (f *fixture) waitFor(condition func() bool, format string, args ...any) {
	f.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	f.t.Fatalf(format, args...)
}

// expectNotice waits for a notice of the given type.
func (f *fixture) expectNotice(kind string) wire.Notice {
	f.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case notice := <-f.notices:
			if notice.Type == kind {
				return notice
			}
		case <-deadline:
			f.t.Fatalf("no %q notice arrived", kind)
		}
	}
}
