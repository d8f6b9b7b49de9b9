package daemonrun

import (
	"context"

	"vidkiosk/internal/daemon"
	"vidkiosk/internal/web"
)

type kioskDaemon interface {
	Enqueue(source, raw string) bool
	Status(ctx context.Context) daemon.Status
	StopPlayback() bool
}

// kiosk exposes the daemon to the dashboard.
type kiosk struct {
	d kioskDaemon
}

func (k kiosk) Enqueue(source, raw string) bool {
	return k.d.Enqueue(source, raw)
}

func (k kiosk) Stop() bool {
	return k.d.StopPlayback()
}

func (k kiosk) Status(ctx context.Context) web.Status {
	s := k.d.Status(ctx)
	return web.Status{
		State:         string(s.Player.State),
		VideoID:       s.VideoID,
		File:          s.Player.File,
		Since:         s.Player.Since,
		PlaysInWindow: s.PlaysInWindow,
		MaxVideos:     s.MaxVideos,
		PeriodHours:   s.Period.Hours(),
		RetryAfter:    s.RetryAfter,
		ScannerDevice: s.ScannerDevice,
		QueueDepth:    s.QueueDepth,
	}
}
