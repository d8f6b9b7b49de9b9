package store

import "time"

// PlayEvent records that a video started playing. Events are append-only.
type PlayEvent struct {
	ID        int64
	VideoID   string
	Platform  string
	SourceURL string
	PlayedAt  time.Time
}

// CacheEntry describes a fully downloaded video on local disk.
type CacheEntry struct {
	VideoID   string
	FilePath  string
	FetchedAt time.Time
	SizeBytes int64
}

// Setting is a single runtime key/value pair.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// DatabaseHealth summarizes the state of the database file for diagnostics.
type DatabaseHealth struct {
	DBPath         string
	SchemaVersion  int
	DatabaseExists bool
	Readable       bool
	PlayEvents     int
	CacheEntries   int
	Error          string
}

// toUnixNano maps the zero time to 0 because UnixNano is undefined before 1678.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
