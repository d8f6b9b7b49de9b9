package daemon

import (
	"context"
	"time"

	"vidkiosk/internal/logging"
)

// retain prunes play events and old log files once at startup and then on
// every retention interval.
func (d *Daemon) retain(ctx context.Context) {
	d.pruneOnce(ctx)
	ticker := time.NewTicker(d.retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pruneOnce(ctx)
		}
	}
}

func (d *Daemon) pruneOnce(ctx context.Context) {
	now := d.now()
	if days := d.cfg.Cache.EventRetentionDays; days > 0 {
		keep := time.Duration(days) * 24 * time.Hour
		// Never drop events the admission window still counts.
		if policy, err := d.deps.Policy.Policy(ctx); err == nil && policy.Period > keep {
			keep = policy.Period
		}
		removed, err := d.deps.Events.DeleteEventsBefore(ctx, now.Add(-keep))
		switch {
		case err != nil && ctx.Err() == nil:
			logging.WarnWithContext(d.logger, "play event pruning failed", "event_retention_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database permissions in paths.data_dir"),
				logging.String(logging.FieldImpact, "play history keeps growing"),
			)
		case removed > 0:
			d.logger.Info("play events pruned",
				logging.Int64("removed", removed),
				logging.Duration("kept", keep),
				logging.String(logging.FieldEventType, "events_pruned"),
			)
		}
	}
	if dir := d.cfg.Paths.LogDir; dir != "" {
		logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, now,
			logging.RetentionTarget{Dir: dir, Pattern: "vidkiosk-*.log", Exclude: d.activeLogs},
		)
	}
}
