package services

import "context"

type contextKey string

// Request-scoped values the logging package lifts into structured fields.
const (
	videoIDKey   contextKey = "video_id"
	stageKey     contextKey = "stage"
	sourceKey    contextKey = "source"
	requestIDKey contextKey = "request_id"
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithVideoID records the platform video identifier. Empty ids are ignored.
func WithVideoID(ctx context.Context, id string) context.Context {
	return withString(ctx, videoIDKey, id)
}

func VideoIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, videoIDKey) }

// WithStage records the request lifecycle state.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, stageKey) }

// WithSource records where the request came from: scanner, web or cli.
func WithSource(ctx context.Context, source string) context.Context {
	return withString(ctx, sourceKey, source)
}

func SourceFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, sourceKey) }

// WithRequestID records the correlation id shared by every log line of a request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, requestIDKey) }
