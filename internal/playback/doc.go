// Package playback owns the display and guarantees it returns to idle.
//
// Controller.Play blocks while one file plays. Overlapping calls are
// rejected with AlreadyPlaying rather than queued: the kiosk has one screen
// and one viewer, and the orchestrator already serializes requests. Every
// exit path (completion, player crash, timeout, manual stop, cancellation,
// or a panic inside the display backend) ends with the display told to go
// idle and the controller back in StateIdle.
package playback
