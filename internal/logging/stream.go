package logging

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	VideoID       string            `json:"video_id,omitempty"`
	Source        string            `json:"source,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// Line renders the event as a single short line suitable for an on-screen overlay.
func (e LogEvent) Line() string {
	var b strings.Builder
	if !e.Timestamp.IsZero() {
		b.WriteString(e.Timestamp.In(time.Local).Format("15:04:05"))
		b.WriteByte(' ')
	}
	if e.Level != "" && e.Level != "INFO" {
		b.WriteString(e.Level)
		b.WriteByte(' ')
	}
	if e.VideoID != "" {
		b.WriteString(e.VideoID)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if errText := e.Fields["error"]; errText != "" {
		b.WriteString(" (")
		b.WriteString(errText)
		b.WriteByte(')')
	}
	return b.String()
}

// StreamHub keeps the newest log events in a ring and wakes readers blocked
// in Fetch. The daemon renders its tail on the player's on-screen display in
// debug mode and serves it to `vidkiosk logs`.
type StreamHub struct {
	mu      sync.Mutex
	ring    []LogEvent
	head    int // oldest event
	size    int
	nextSeq uint64
	// published is closed and replaced on every Publish.
	published chan struct{}
}

// NewStreamHub keeps the newest capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{
		ring:      make([]LogEvent, capacity),
		published: make(chan struct{}),
	}
}

// Publish stamps evt with the next sequence and evicts the oldest event when full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if h.size < len(h.ring) {
		h.ring[(h.head+h.size)%len(h.ring)] = evt
		h.size++
	} else {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % len(h.ring)
	}
	close(h.published)
	h.published = make(chan struct{})
}

// at returns the i-th oldest buffered event. Callers hold mu.
func (h *StreamHub) at(i int) LogEvent {
	return h.ring[(h.head+i)%len(h.ring)]
}

// Fetch returns up to limit events with a sequence greater than since, and
// the cursor to pass on the next call. With wait set it blocks until an
// event arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		h.mu.Lock()
		events, next := h.afterLocked(since, limit)
		published := h.published
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, next, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, next, ctx.Err()
		case <-published:
		}
	}
}

func (h *StreamHub) afterLocked(since uint64, limit int) ([]LogEvent, uint64) {
	if limit <= 0 || limit > len(h.ring) {
		limit = len(h.ring)
	}
	var out []LogEvent
	for i := 0; i < h.size; i++ {
		evt := h.at(i)
		if evt.Sequence <= since {
			continue
		}
		if len(out) == limit {
			// More remain; resume after the last one handed out.
			return out, out[len(out)-1].Sequence
		}
		out = append(out, evt)
	}
	return out, h.nextSeq
}

// Tail returns the newest limit events and the current sequence without blocking.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	if limit == 0 {
		return nil, h.nextSeq
	}
	out := make([]LogEvent, 0, limit)
	for i := h.size - limit; i < h.size; i++ {
		out = append(out, h.at(i))
	}
	return out, h.nextSeq
}

// FirstSequence reports the oldest sequence still buffered, or the current
// sequence when the hub is empty.
func (h *StreamHub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.size == 0 {
		return h.nextSeq
	}
	return h.at(0).Sequence
}
