package daemon

import (
	"context"
	"strings"
	"time"

	"vidkiosk/internal/logging"
)

const (
	osdLines    = 10
	osdDuration = 30 * time.Second
	// osdRefresh re-sends an unchanged overlay before mpv drops it.
	osdRefresh = osdDuration - 5*time.Second
)

// OSD draws text over the player output.
type OSD interface {
	ShowText(ctx context.Context, text string, duration time.Duration) error
}

func (d *Daemon) overlay(ctx context.Context) {
	ticker := time.NewTicker(d.osdInterval)
	defer ticker.Stop()

	var (
		lastSeq   uint64
		lastShown time.Time
		shown     bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !d.debug.Load() {
			if shown {
				// An empty message replaces whatever is still on screen.
				_ = d.osd.ShowText(ctx, "", time.Millisecond)
				shown = false
				lastSeq = 0
			}
			continue
		}

		events, seq := d.hub.Tail(osdLines)
		now := time.Now()
		if shown && seq == lastSeq && now.Sub(lastShown) < osdRefresh {
			continue
		}
		if err := d.osd.ShowText(ctx, renderOverlay(events), osdDuration); err != nil {
			d.logger.Debug("debug overlay update failed", logging.Error(err))
			continue
		}
		lastSeq = seq
		lastShown = now
		shown = true
	}
}

func renderOverlay(events []logging.LogEvent) string {
	lines := make([]string, 0, len(events))
	for _, evt := range events {
		lines = append(lines, evt.Line())
	}
	return strings.Join(lines, "\n")
}
