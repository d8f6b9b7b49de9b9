package logging

import (
	"context"
	"log/slog"

	"vidkiosk/internal/services"
)

// Keys shared by every component so log lines can be filtered consistently.
const (
	FieldComponent = "component"
	// FieldVideoID holds the platform video identifier, never the full URL.
	FieldVideoID = "video_id"
	// FieldStage is the request lifecycle state.
	FieldStage = "stage"
	// FieldSource is scanner, web or cli.
	FieldSource        = "source"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint    = "error_hint"
	FieldDecisionType = "decision_type"
)

// ContextFields collects the request fields stored on ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.VideoIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldVideoID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if source, ok := services.SourceFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSource, source))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext attaches ContextFields(ctx) to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
