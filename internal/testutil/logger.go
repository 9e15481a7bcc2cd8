// Package testutil provides shared helpers for the munaudit test suites.
package testutil

import (
	"log/slog"
	"testing"
)

// NewTestLogger returns a slog.Logger that routes records through t.Log,
// so loader and engine diagnostics surface alongside the failing test.
// Records only appear on failure or under -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(tbWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type tbWriter struct {
	tb testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.tb.Helper()
	w.tb.Log(string(p))
	return len(p), nil
}
