// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for ChatKit packages.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that individual tests do not
// need direct time.After calls. It is the only place in the test
// suite where real wall-clock timeouts are used; everything
// time-dependent in the engine itself runs against the fake clock in
// lib/clock.
//
// It calls t.Fatalf on failure rather than returning an error, since
// test setup failures are not recoverable.
//
// This package has no ChatKit-internal dependencies.
package testutil
