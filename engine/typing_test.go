// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"
	"time"

	"github.com/socialconnect/chatkit/lib/testutil"
	"github.com/socialconnect/chatkit/wire"
)

func TestTypingClearedImmediatelyOnFalse(t *testing.T) {
	f := newFixture(t)
	f.join("u2")

	f.push(wire.EventUserTyping, wire.TypingEvent{SenderID: "u2", IsTyping: true})
	f.waitFor(func() bool { return f.engine.TypingPeer() == "u2" }, "typing fact never appeared")

	// An explicit stop clears right away, not at the expiry deadline.
	f.push(wire.EventUserTyping, wire.TypingEvent{SenderID: "u2", IsTyping: false})
	f.waitFor(func() bool { return f.engine.TypingPeer() == "" }, "typing fact survived an explicit stop")

	// The expiry countdown was cancelled, not left to fire into
	// nothing.
	f.waitFor(func() bool { return f.clk.PendingTimers() == 0 }, "expiry timer leaked after explicit stop")
}

func TestTypingExpiresWithoutFollowUp(t *testing.T) {
	f := newFixture(t)
	f.join("u2")

	f.push(wire.EventUserTyping, wire.TypingEvent{SenderID: "u2", IsTyping: true})
	f.waitFor(func() bool { return f.engine.TypingPeer() == "u2" }, "typing fact never appeared")

	// Just short of the timeout the fact is still visible.
	f.clk.Advance(defaultTypingExpiry - time.Millisecond)
	if peer := f.engine.TypingPeer(); peer != "u2" {
		t.Errorf("typing fact %q gone before expiry", peer)
	}

	// A dropped stop-typing event must not leave the fact visible
	// forever: the countdown clears it.
	f.clk.Advance(time.Millisecond)
	f.waitFor(func() bool { return f.engine.TypingPeer() == "" }, "typing fact never expired")
}

func TestTypingRepeatResetsCountdown(t *testing.T) {
	f := newFixture(t)
	f.join("u2")

	f.push(wire.EventUserTyping, wire.TypingEvent{SenderID: "u2", IsTyping: true})
	f.waitFor(func() bool { return f.engine.TypingPeer() == "u2" }, "typing fact never appeared")

	f.clk.Advance(2 * time.Second)

	// A repeat inside the window restarts the countdown (debounce,
	// not accumulate).
	f.push(wire.EventUserTyping, wire.TypingEvent{SenderID: "u2", IsTyping: true})
	f.pushBarrier("u2")

	f.clk.Advance(2 * time.Second)
	if peer := f.engine.TypingPeer(); peer != "u2" {
		t.Error("typing fact expired on the superseded countdown")
	}

	f.clk.Advance(time.Second)
	f.waitFor(func() bool { return f.engine.TypingPeer() == "" }, "typing fact never expired after reset")
}

func TestTypingTracksMostRecentPeerOnly(t *testing.T) {
	f := newFixture(t)
	f.join("u2", "u3")

	f.push(wire.EventUserTyping, wire.TypingEvent{SenderID: "u2", IsTyping: true})
	f.waitFor(func() bool { return f.engine.TypingPeer() == "u2" }, "first typing fact never appeared")

	f.push(wire.EventUserTyping, wire.TypingEvent{SenderID: "u3", IsTyping: true})
	f.waitFor(func() bool { return f.engine.TypingPeer() == "u3" }, "newer typing peer did not replace older")

	// A stale stop from the replaced peer must not clear the current
	// fact.
	f.push(wire.EventUserTyping, wire.TypingEvent{SenderID: "u2", IsTyping: false})
	f.pushBarrier("u2", "u3")
	if peer := f.engine.TypingPeer(); peer != "u3" {
		t.Errorf("typing peer = %q after stale stop, want u3", peer)
	}
}

// drainTyping collects typing events from the server end until idle.
func drainTyping(t *testing.T, f *fixture, want int) []wire.TypingEvent {
	t.Helper()
	var events []wire.TypingEvent
	deadline := time.After(5 * time.Second)
	for len(events) < want {
		select {
		case envelope, open := <-f.server.Events():
			if !open {
				t.Fatal("channel closed while draining typing events")
			}
			if envelope.Event != wire.EventTyping {
				continue
			}
			var typing wire.TypingEvent
			if err := envelope.Decode(&typing); err != nil {
				t.Fatalf("decoding typing event: %v", err)
			}
			events = append(events, typing)
		case <-deadline:
			t.Fatalf("got %d typing events, want %d", len(events), want)
		}
	}
	return events
}

func TestLocalTypingEmitsOncePerBurst(t *testing.T) {
	f := newFixture(t)
	f.join("u2")
	f.openConversation("u2")
	f.waitFor(func() bool { _, loading := f.engine.Timeline(); return !loading }, "history never settled")

	// Repeated keystrokes inside the idle window emit exactly one
	// typing=true.
	for i := 0; i < 3; i++ {
		if err := f.engine.NotifyTyping(); err != nil {
			t.Fatalf("NotifyTyping failed: %v", err)
		}
	}

	events := drainTyping(t, f, 1)
	if !events[0].IsTyping || events[0].ReceiverID != "u2" || events[0].SenderID != "u1" {
		t.Errorf("unexpected typing event: %+v", events[0])
	}

	// The pause fires typing=false.
	f.clk.Advance(defaultTypingIdle)
	events = drainTyping(t, f, 1)
	if events[0].IsTyping {
		t.Error("idle expiry emitted typing=true, want false")
	}

	// A fresh burst after the pause emits true again.
	if err := f.engine.NotifyTyping(); err != nil {
		t.Fatalf("NotifyTyping failed: %v", err)
	}
	events = drainTyping(t, f, 1)
	if !events[0].IsTyping {
		t.Error("fresh burst did not emit typing=true")
	}
}

func TestLocalTypingKeystrokesExtendIdleWindow(t *testing.T) {
	f := newFixture(t)
	f.join("u2")
	f.openConversation("u2")
	f.waitFor(func() bool { _, loading := f.engine.Timeline(); return !loading }, "history never settled")

	if err := f.engine.NotifyTyping(); err != nil {
		t.Fatalf("NotifyTyping failed: %v", err)
	}
	drainTyping(t, f, 1)

	// Keystroke at 600ms pushes the idle deadline to 1.6s.
	f.clk.Advance(600 * time.Millisecond)
	if err := f.engine.NotifyTyping(); err != nil {
		t.Fatalf("NotifyTyping failed: %v", err)
	}

	// Crossing the original deadline emits nothing.
	f.clk.Advance(700 * time.Millisecond)
	select {
	case envelope := <-f.server.Events():
		if envelope.Event == wire.EventTyping {
			t.Fatalf("typing event emitted before the extended deadline: %s", envelope.Payload)
		}
	case <-time.After(50 * time.Millisecond):
	}

	f.clk.Advance(300 * time.Millisecond)
	events := drainTyping(t, f, 1)
	if events[0].IsTyping {
		t.Error("extended idle expiry emitted typing=true, want false")
	}
}

func TestSendEndsTypingBurst(t *testing.T) {
	f := newFixture(t)
	f.join("u2")
	f.openConversation("u2")
	f.waitFor(func() bool { _, loading := f.engine.Timeline(); return !loading }, "history never settled")

	if err := f.engine.NotifyTyping(); err != nil {
		t.Fatalf("NotifyTyping failed: %v", err)
	}
	drainTyping(t, f, 1)

	completion, err := f.engine.SendMessage("hi", "")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	// The send emits typing=false before the message, so the peer
	// never sees a stale indicator next to a fresh message.
	events := drainTyping(t, f, 1)
	if events[0].IsTyping {
		t.Error("send did not end the typing burst")
	}

	if err := testutil.RequireReceive(t, completion, 5*time.Second, "waiting for durable send"); err != nil {
		t.Fatalf("durable send failed: %v", err)
	}
}

func TestNotifyTypingRequiresConversation(t *testing.T) {
	f := newFixture(t)
	f.join("u2")

	if err := f.engine.NotifyTyping(); err != ErrNoConversation {
		t.Errorf("NotifyTyping = %v, want ErrNoConversation", err)
	}
}
