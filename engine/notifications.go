// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"slices"

	"github.com/socialconnect/chatkit/wire"
)

// notificationStore holds the notification collection in arrival
// order, newest first, keyed by ID. Arrival order is authoritative —
// the store never re-sorts by timestamp, so the list always matches
// what the user actually saw arrive. Loop-only.
type notificationStore struct {
	list   []wire.Notification
	seen   map[string]struct{}
	unread int

	// loadGen invalidates a stale initial load racing a reconnect's
	// fresh one.
	loadGen uint64
}

// loadNotifications starts the once-per-connection bulk fetch. The
// response replaces the whole collection. Loop-only.
func (e *Engine) loadNotifications() {
	userID := e.connection.identity.ID
	ctx := e.baseCtx
	e.notifications.loadGen++
	gen := e.notifications.loadGen

	go func() {
		notifications, err := e.backend.Notifications(ctx, userID)
		e.post(func() {
			if gen != e.notifications.loadGen {
				return
			}
			if err != nil {
				// A failed load keeps whatever the store already has
				// rather than wiping it.
				e.logger.Warn("notification load failed", "error", err)
				return
			}
			e.notifications.replace(notifications)
		})
	}()
}

// replace installs the bulk-fetched collection wholesale.
func (s *notificationStore) replace(notifications []wire.Notification) {
	s.list = slices.Clone(notifications)
	s.seen = make(map[string]struct{}, len(notifications))
	s.unread = 0
	for _, n := range notifications {
		s.seen[n.ID] = struct{}{}
		if !n.Read {
			s.unread++
		}
	}
}

// push prepends a pushed notification. Duplicate IDs are ignored so a
// push racing the bulk fetch (or a replayed push) cannot double-count.
// Reports whether the notification was inserted.
func (s *notificationStore) push(notification wire.Notification) bool {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, dup := s.seen[notification.ID]; dup {
		return false
	}
	s.seen[notification.ID] = struct{}{}
	s.list = append([]wire.Notification{notification}, s.list...)
	if !notification.Read {
		s.unread++
	}
	return true
}

// markRead flips one entry to read locally. Idempotent: an
// already-read entry leaves the counter alone, and the counter floors
// at zero. Reports whether state changed.
func (s *notificationStore) markRead(id string) bool {
	for i := range s.list {
		if s.list[i].ID != id {
			continue
		}
		if s.list[i].Read {
			return false
		}
		s.list[i].Read = true
		if s.unread > 0 {
			s.unread--
		}
		return true
	}
	return false
}

// markAllRead flips every entry and zeroes the counter. Reports
// whether anything changed.
func (s *notificationStore) markAllRead() bool {
	changed := false
	for i := range s.list {
		if !s.list[i].Read {
			s.list[i].Read = true
			changed = true
		}
	}
	s.unread = 0
	return changed
}

func (s *notificationStore) snapshot() []wire.Notification {
	return slices.Clone(s.list)
}

// MarkNotificationRead optimistically flips the notification locally
// and then issues the durable request. The local flip is not rolled
// back on request failure — the server copy is reconciled on the next
// full load, and a responsive counter beats a strictly consistent one
// here.
func (e *Engine) MarkNotificationRead(id string) {
	e.post(func() {
		if !e.notifications.markRead(id) {
			return
		}
		ctx := e.baseCtx
		go func() {
			if err := e.backend.MarkNotificationRead(ctx, id); err != nil {
				e.logger.Warn("durable mark-read failed", "notification_id", id, "error", err)
			}
		}()
	})
}

// MarkAllNotificationsRead optimistically flips every notification and
// issues one durable bulk request. Same no-rollback policy as
// MarkNotificationRead.
func (e *Engine) MarkAllNotificationsRead() {
	e.post(func() {
		if !e.notifications.markAllRead() {
			return
		}
		userID := e.connection.identity.ID
		ctx := e.baseCtx
		go func() {
			if err := e.backend.MarkAllNotificationsRead(ctx, userID); err != nil {
				e.logger.Warn("durable mark-all-read failed", "error", err)
			}
		}()
	})
}
