package daemon

import (
	"context"
	"log/slog"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/notifications"
	"vidkiosk/internal/orchestrator"
	"vidkiosk/internal/videourl"
)

// OutcomeNotifier returns an orchestrator observer that pushes rate-limit and
// failure notifications.
func OutcomeNotifier(n notifications.Service, logger *slog.Logger) orchestrator.Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(ctx context.Context, out orchestrator.Outcome) {
		var (
			event   notifications.Event
			payload notifications.Payload
		)
		switch {
		case out.State == orchestrator.StateRejected && out.Kind == orchestrator.KindRateLimited:
			event = notifications.EventRateLimited
			payload = notifications.Payload{"videoID": out.Video.ID, "retryAfter": out.RetryAfter}
		case out.State == orchestrator.StateFailed && out.Kind != orchestrator.KindCancelled:
			label := string(out.Kind)
			if out.Video.ID != "" {
				label = out.Video.ID + " (" + label + ")"
			}
			event = notifications.EventError
			payload = notifications.Payload{"context": label, "error": out.Err}
		default:
			return
		}
		if err := n.Publish(ctx, event, payload); err != nil {
			logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}

// PlayNotifier returns an orchestrator hook that announces each started video.
// Publishing runs in the background.
func PlayNotifier(n notifications.Service, logger *slog.Logger) func(context.Context, videourl.Video) {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(ctx context.Context, video videourl.Video) {
		payload := notifications.Payload{
			"videoID":  video.ID,
			"platform": videourl.PlatformLabel(video.Platform),
		}
		ctx = context.WithoutCancel(ctx)
		go func() {
			if err := n.Publish(ctx, notifications.EventPlaybackStarted, payload); err != nil {
				logger.Debug("notification failed", logging.String("event", string(notifications.EventPlaybackStarted)), logging.Error(err))
			}
		}()
	}
}
