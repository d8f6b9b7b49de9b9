package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"vidkiosk/internal/playback"
	"vidkiosk/internal/videocache"
	"vidkiosk/internal/videourl"
)

// State is a step in the request lifecycle.
type State string

const (
	StateReceived         State = "received"
	StateValidated        State = "validated"
	StateAdmissionChecked State = "admission_checked"
	StateResolved         State = "resolved"
	StatePlaying          State = "playing"
	StateIdle             State = "idle"
	StateRejected         State = "rejected"
	StateFailed           State = "failed"
)

// Kind names the reason for a rejected or failed outcome.
type Kind string

const (
	KindInvalidURL         Kind = "invalid_url"
	KindRateLimited        Kind = "rate_limited"
	KindInvalidVideoID     Kind = Kind(videocache.KindInvalidVideoID)
	KindNetworkFailure     Kind = Kind(videocache.KindNetworkFailure)
	KindDownloadIncomplete Kind = Kind(videocache.KindDownloadIncomplete)
	KindDiskFull           Kind = Kind(videocache.KindDiskFull)
	KindAlreadyPlaying     Kind = Kind(playback.KindAlreadyPlaying)
	KindPlayerCrashed      Kind = Kind(playback.KindPlayerCrashed)
	KindTimeout            Kind = Kind(playback.KindTimeout)
	KindDisplayUnavailable Kind = Kind(playback.KindDisplayUnavailable)
	// KindInternal covers failures of the kiosk itself, such as the database.
	KindInternal Kind = "internal"
	// KindCancelled means the caller gave up, usually on shutdown.
	KindCancelled Kind = "cancelled"
)

// ErrInvalidURL rejects input that is not a supported video URL.
var ErrInvalidURL = videourl.ErrInvalidURL

// ErrRateLimited matches every RateLimitedError.
var ErrRateLimited = errors.New("rate limited")

// RateLimitedError carries the wait before another video is admitted.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter.Round(time.Second))
}

// Is reports ErrRateLimited as a match.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// Outcome is the terminal result of Handle.
type Outcome struct {
	RequestID string
	SourceURL string
	Video     videourl.Video
	// State is StateIdle on success or manual stop, otherwise StateRejected
	// or StateFailed. The display is idle whenever Handle has returned.
	State State
	Kind  Kind
	Err   error
	// RetryAfter is set for rate-limited rejections.
	RetryAfter time.Duration
	// Trace lists every state the request passed through, in order.
	Trace    []State
	Stopped  bool
	FilePath string
	Started  time.Time
	Elapsed  time.Duration
}

// OK reports whether the video played to the end or was stopped by hand.
func (o Outcome) OK() bool {
	return o.State == StateIdle
}

// Summary is a short human description of the outcome.
func (o Outcome) Summary() string {
	switch {
	case o.State == StateIdle && o.Stopped:
		return "Stopped"
	case o.State == StateIdle:
		return "Played " + o.Video.ID
	case o.Kind == KindInvalidURL:
		return "Not a supported video link"
	case o.Kind == KindRateLimited:
		return "Limit reached, next video in " + formatWait(o.RetryAfter)
	default:
		return fmt.Sprintf("Error: %s", o.Kind)
	}
}

func (o *Outcome) enter(state State) {
	o.Trace = append(o.Trace, state)
}

func (o *Outcome) reject(kind Kind, err error) Outcome {
	o.State = StateRejected
	o.Kind = kind
	o.Err = err
	o.enter(StateRejected)
	return *o
}

func (o *Outcome) fail(kind Kind, err error) Outcome {
	o.State = StateFailed
	o.Kind = kind
	o.Err = err
	o.enter(StateFailed)
	return *o
}

func formatWait(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "under a minute"
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%02dm", h, m)
	}
}
