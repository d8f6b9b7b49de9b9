package ipc

import (
	"time"

	"vidkiosk/internal/daemon"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/store"
	"vidkiosk/internal/videocache"
)

// PlayRequest queues a URL for playback.
type PlayRequest struct {
	URL string `json:"url"`
	// Wait blocks the call until the request reaches a terminal state.
	Wait bool `json:"wait"`
}

// PlayResponse reports whether the URL was queued and, for waiting calls,
// how it ended.
type PlayResponse struct {
	Queued  bool             `json:"queued"`
	Message string           `json:"message"`
	Outcome *OutcomeResponse `json:"outcome,omitempty"`
}

// OutcomeResponse is the wire form of a terminal request outcome.
type OutcomeResponse struct {
	RequestID  string        `json:"request_id"`
	VideoID    string        `json:"video_id,omitempty"`
	State      string        `json:"state"`
	Kind       string        `json:"kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	RetryAfter time.Duration `json:"retry_after_ns,omitempty"`
	Trace      []string      `json:"trace"`
	Stopped    bool          `json:"stopped"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// StopRequest stops the current video.
type StopRequest struct{}

// StopResponse indicates whether a video was playing.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon, player, and admission status.
type StatusResponse = daemon.Status

// HistoryRequest fetches recent play events.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse lists play events, newest first.
type HistoryResponse struct {
	Events []store.PlayEvent `json:"events"`
}

// CacheListRequest fetches the cache catalog.
type CacheListRequest struct{}

// CacheListResponse lists cached videos, oldest fetch first.
type CacheListResponse struct {
	Entries []store.CacheEntry `json:"entries"`
	Stats   videocache.Stats   `json:"stats"`
}

// CachePruneRequest trims the cache to its budget.
type CachePruneRequest struct{}

// CachePruneResponse lists what the prune removed.
type CachePruneResponse = videocache.PruneResult

// CacheRemoveRequest deletes one cached video.
type CacheRemoveRequest struct {
	VideoID string `json:"video_id"`
}

// CacheRemoveResponse confirms a removal.
type CacheRemoveResponse struct {
	Removed bool `json:"removed"`
}

// LogTailRequest fetches log events after a sequence number.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
}

// LogTailResponse returns log events and the sequence to resume from.
type LogTailResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse = store.DatabaseHealth

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
