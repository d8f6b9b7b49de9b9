// Package daemon coordinates the long-running kiosk process.
//
// It owns the single-instance lock, the bounded request queue that every input
// source (scanner, dashboard, CLI) feeds, and the single worker that drains it
// into the orchestrator. Background services such as the mpv supervisor and
// the scanner listener run under the daemon's lifecycle, alongside the event
// retention loop and the debug on-screen log.
//
// Keep orchestration logic here: request handling lives in the orchestrator
// while the daemon focuses on startup, shutdown, and status reporting.
package daemon
