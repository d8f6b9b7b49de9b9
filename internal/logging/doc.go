// Package logging assembles structured slog loggers and formatting helpers used
// across vidkiosk.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log lines
// with video IDs, lifecycle stages, input sources, and correlation IDs. The
// StreamHub keeps a bounded ring of recent events for the debug overlay and the
// dashboard. A no-op logger is provided for tests and wiring code that cannot fail.
package logging
