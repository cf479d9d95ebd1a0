// Package logging assembles structured slog loggers and formatting helpers used
// across QuickView.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code can tag log lines with the
// item key, stage, and batch correlation id. A no-op logger is provided for
// tests and for wiring code that has no logger yet.
package logging
