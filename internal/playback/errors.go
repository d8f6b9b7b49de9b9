package playback

import (
	"errors"
	"fmt"
)

// Kind classifies a playback failure.
type Kind string

const (
	KindAlreadyPlaying     Kind = "already_playing"
	KindPlayerCrashed      Kind = "player_crashed"
	KindTimeout            Kind = "timeout"
	KindDisplayUnavailable Kind = "display_unavailable"
)

// Error is returned by Play for every failure except a manual stop.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "playback: " + string(e.Kind)
	}
	return fmt.Sprintf("playback: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below so callers can use errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrAlreadyPlaying     = &Error{Kind: KindAlreadyPlaying}
	ErrPlayerCrashed      = &Error{Kind: KindPlayerCrashed}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrDisplayUnavailable = &Error{Kind: KindDisplayUnavailable}
)

// ErrStopped is returned when playback ended through Stop.
var ErrStopped = errors.New("playback stopped")

// KindOf returns the kind carried by err, or "" when err is not a playback Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
