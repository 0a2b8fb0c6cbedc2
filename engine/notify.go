// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "log/slog"

// Notifier displays a system (desktop/OS) notification. Show is
// fire-and-forget: the engine never waits on it and never reacts to
// display failure. Implementations decide how — or whether — to
// render.
type Notifier interface {
	Show(title, body string)
}

// Gated wraps a Notifier behind a permission check evaluated per
// Show call. The engine does not manage the permission flag; the
// consuming application owns it (and may flip it at runtime).
func Gated(allowed func() bool, base Notifier) Notifier {
	return gatedNotifier{allowed: allowed, base: base}
}

type gatedNotifier struct {
	allowed func() bool
	base    Notifier
}

func (g gatedNotifier) Show(title, body string) {
	if g.allowed == nil || !g.allowed() {
		return
	}
	g.base.Show(title, body)
}

// LogNotifier renders system notifications as structured log lines.
// The default surface for headless environments and the CLI.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Show(title, body string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("system notification", "title", title, "body", body)
}
