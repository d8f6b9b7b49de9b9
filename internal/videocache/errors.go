package videocache

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"vidkiosk/internal/services"
)

// Kind classifies why a video could not be made available locally.
type Kind string

const (
	KindInvalidVideoID     Kind = "invalid_video_id"
	KindNetworkFailure     Kind = "network_failure"
	KindDownloadIncomplete Kind = "download_incomplete"
	KindDiskFull           Kind = "disk_full"
)

// ErrClosed is returned by Resolve once the resolver has been closed.
var ErrClosed = errors.New("videocache: resolver closed")

// FetchError is returned by Resolve for every failure.
type FetchError struct {
	Kind    Kind
	VideoID string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.VideoID, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.VideoID, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf returns the fetch error kind carried by err, or "" when err is not a FetchError.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func fetchError(kind Kind, videoID string, err error) *FetchError {
	return &FetchError{Kind: kind, VideoID: videoID, Err: err}
}

// classify maps a downloader or filesystem failure to a kind.
func classify(err error) Kind {
	switch {
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.EDQUOT):
		return KindDiskFull
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrValidation):
		return KindInvalidVideoID
	case errors.Is(err, services.ErrTransient):
		return KindNetworkFailure
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindDownloadIncomplete
	default:
		return KindDownloadIncomplete
	}
}
