// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now or time.AfterFunc directly. In production, Real() provides
// the standard library behavior. In tests, Fake() provides a
// deterministic clock that advances only when Advance is called.
//
// # Wiring Pattern
//
// Add a Clock field to structs that schedule work:
//
//	type Tracker struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	tracker := &Tracker{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	tracker := &Tracker{clock: c}
//	c.Advance(3 * time.Second) // fire the expiry deterministically
//
// AfterFunc callbacks on the fake clock run synchronously inside
// Advance, in deadline order. Do not call Advance from within a
// callback — that would recurse into the waiter list mid-fire.
package clock
