package daemon

import (
	"context"
	"time"
)

// SetOverlayInterval shortens the debug overlay tick for tests.
func SetOverlayInterval(d *Daemon, interval time.Duration) {
	d.osdInterval = interval
}

// PruneOnce runs a single retention pass.
func PruneOnce(d *Daemon, ctx context.Context) {
	d.pruneOnce(ctx)
}
