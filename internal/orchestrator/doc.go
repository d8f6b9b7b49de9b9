// Package orchestrator turns one scanned or pasted URL into at most one
// playback.
//
// Handle walks a request through validation, admission, resolution, and
// playback, and always returns a terminal Outcome. Downloads for different
// requests run concurrently. The final admission recheck, the play-event
// record, and playback itself happen inside a single play slot, so
// concurrent requests can never spend more quota than the policy allows.
// The quota is charged immediately before playback starts; a request that
// fails validation or download costs nothing.
package orchestrator
