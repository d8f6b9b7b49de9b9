package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const eventColumns = `id, video_id, platform, source_url, played_at`

// AppendEvent records a play event. The stored event is returned with its ID.
func (s *Store) AppendEvent(ctx context.Context, event PlayEvent) (PlayEvent, error) {
	event.VideoID = strings.TrimSpace(event.VideoID)
	if event.VideoID == "" {
		return PlayEvent{}, errors.New("append event: video id is required")
	}
	if event.PlayedAt.IsZero() {
		return PlayEvent{}, errors.New("append event: played_at is required")
	}
	if event.Platform == "" {
		event.Platform = "youtube"
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO play_events (video_id, platform, source_url, played_at) VALUES (?, ?, ?, ?)`,
		event.VideoID, event.Platform, event.SourceURL, toUnixNano(event.PlayedAt),
	)
	if err != nil {
		return PlayEvent{}, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PlayEvent{}, fmt.Errorf("append event id: %w", err)
	}
	event.ID = id
	event.PlayedAt = event.PlayedAt.UTC()
	return event, nil
}

// EventsSince returns events with played_at strictly after since, oldest first.
func (s *Store) EventsSince(ctx context.Context, since time.Time) ([]PlayEvent, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM play_events WHERE played_at > ? ORDER BY played_at ASC, id ASC`,
		toUnixNano(since),
	)
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]PlayEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM play_events ORDER BY played_at DESC, id DESC LIMIT ?`,
		limit,
	)
}

// DeleteEventsBefore removes events played at or before cutoff and reports how many were removed.
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM play_events WHERE played_at <= ?`, toUnixNano(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]PlayEvent, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []PlayEvent
	for rows.Next() {
		var (
			event    PlayEvent
			playedAt int64
		)
		if err := rows.Scan(&event.ID, &event.VideoID, &event.Platform, &event.SourceURL, &playedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.PlayedAt = fromUnixNano(playedAt)
		events = append(events, event)
	}
	return events, rows.Err()
}
