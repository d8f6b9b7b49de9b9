package testsupport

import (
	"context"
	"testing"
	"time"

	"vidkiosk/internal/config"
	"vidkiosk/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// AppendPlay records a play event for videoID at playedAt.
func AppendPlay(t testing.TB, st *store.Store, videoID string, playedAt time.Time) store.PlayEvent {
	t.Helper()

	event, err := st.AppendEvent(context.Background(), store.PlayEvent{VideoID: videoID, Platform: "youtube", PlayedAt: playedAt})
	if err != nil {
		t.Fatalf("store.AppendEvent: %v", err)
	}
	return event
}
