package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/playback"
	"vidkiosk/internal/ratelimit"
	"vidkiosk/internal/services"
	"vidkiosk/internal/store"
	"vidkiosk/internal/videocache"
	"vidkiosk/internal/videourl"
)

// Parser turns raw input into a video reference.
type Parser interface {
	Parse(raw string) (videourl.Video, error)
}

// Limiter admits and records plays.
type Limiter interface {
	Admit(ctx context.Context, now time.Time) (ratelimit.Decision, error)
	Record(ctx context.Context, event store.PlayEvent) (store.PlayEvent, error)
}

// Resolver returns a playable cache entry for a video id.
type Resolver interface {
	Resolve(ctx context.Context, videoID string) (store.CacheEntry, error)
}

// Pinner is implemented by resolvers that can keep a video on disk while a
// request holds it.
type Pinner interface {
	Pin(videoID string) (release func())
}

// Player plays a local file and returns once the display is idle again.
type Player interface {
	Play(ctx context.Context, path string) error
}

// Feedback gives the person at the kiosk an immediate cue.
type Feedback interface {
	Success(ctx context.Context)
	Error(ctx context.Context)
}

// Observer receives every terminal outcome.
type Observer func(ctx context.Context, outcome Outcome)

// Orchestrator runs scan requests end to end.
type Orchestrator struct {
	parser    Parser
	limiter   Limiter
	resolver  Resolver
	player    Player
	feedback  Feedback
	observers []Observer
	onPlay    func(ctx context.Context, video videourl.Video)
	logger    *slog.Logger
	now       func() time.Time

	// slot admits one request at a time into recheck, record, and play.
	slot chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used for admission and play events.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFeedback sets the audible feedback sink.
func WithFeedback(f Feedback) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.feedback = f
		}
	}
}

// WithObserver registers fn to run after every request.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

// WithOnPlay registers fn to run once the play is recorded, just before
// the player starts.
func WithOnPlay(fn func(ctx context.Context, video videourl.Video)) Option {
	return func(o *Orchestrator) {
		o.onPlay = fn
	}
}

// New builds an Orchestrator. All four collaborators are required.
func New(parser Parser, limiter Limiter, resolver Resolver, player Player, opts ...Option) (*Orchestrator, error) {
	if parser == nil || limiter == nil || resolver == nil || player == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "new", "parser, limiter, resolver, and player are required", nil)
	}
	o := &Orchestrator{
		parser:   parser,
		limiter:  limiter,
		resolver: resolver,
		player:   player,
		feedback: silent{},
		logger:   logging.NewNop(),
		now:      time.Now,
		slot:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "orchestrator")
	return o, nil
}

// Handle processes one raw input string and returns its terminal outcome.
// It never panics on bad input and never leaves the display playing.
func (o *Orchestrator) Handle(ctx context.Context, raw string) (result Outcome) {
	requestID := uuid.NewString()
	ctx = services.WithRequestID(ctx, requestID)

	out := Outcome{
		RequestID: requestID,
		SourceURL: raw,
		Started:   o.now(),
	}
	out.enter(StateReceived)
	defer func() {
		result.Elapsed = o.now().Sub(result.Started)
		o.finish(ctx, result)
	}()

	video, err := o.parser.Parse(raw)
	if err != nil {
		return out.reject(KindInvalidURL, err)
	}
	out.Video = video
	out.SourceURL = video.SourceURL
	out.enter(StateValidated)
	ctx = services.WithVideoID(ctx, video.ID)

	decision, err := o.limiter.Admit(ctx, o.now())
	if err != nil {
		return out.fail(KindInternal, err)
	}
	out.enter(StateAdmissionChecked)
	if !decision.Allowed {
		out.RetryAfter = decision.RetryAfter
		return out.reject(KindRateLimited, &RateLimitedError{RetryAfter: decision.RetryAfter})
	}
	o.feedback.Success(ctx)

	// Held until playback ends so concurrent downloads cannot prune it.
	if p, ok := o.resolver.(Pinner); ok {
		defer p.Pin(video.ID)()
	}
	entry, err := o.resolver.Resolve(ctx, video.ID)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return out.fail(KindCancelled, err)
		}
		kind := Kind(videocache.KindOf(err))
		if kind == "" {
			kind = KindDownloadIncomplete
		}
		return out.fail(kind, err)
	}
	out.FilePath = entry.FilePath
	out.enter(StateResolved)

	select {
	case o.slot <- struct{}{}:
	case <-ctx.Done():
		return out.fail(KindCancelled, ctx.Err())
	}
	defer func() { <-o.slot }()

	// Another request may have played while this one was downloading.
	decision, err = o.limiter.Admit(ctx, o.now())
	if err != nil {
		return out.fail(KindInternal, err)
	}
	out.enter(StateAdmissionChecked)
	if !decision.Allowed {
		out.RetryAfter = decision.RetryAfter
		return out.reject(KindRateLimited, &RateLimitedError{RetryAfter: decision.RetryAfter})
	}
	if _, err := o.limiter.Record(ctx, store.PlayEvent{
		VideoID:   video.ID,
		Platform:  video.Platform,
		SourceURL: video.SourceURL,
		PlayedAt:  o.now(),
	}); err != nil {
		return out.fail(KindInternal, err)
	}

	out.enter(StatePlaying)
	if o.onPlay != nil {
		o.onPlay(ctx, video)
	}
	err = o.player.Play(ctx, entry.FilePath)
	out.enter(StateIdle)
	switch {
	case err == nil:
		out.State = StateIdle
	case errors.Is(err, playback.ErrStopped):
		out.State = StateIdle
		out.Stopped = true
	case playback.KindOf(err) != "":
		return out.fail(Kind(playback.KindOf(err)), err)
	case ctx.Err() != nil:
		return out.fail(KindCancelled, err)
	default:
		return out.fail(KindPlayerCrashed, err)
	}
	return out
}

func (o *Orchestrator) finish(ctx context.Context, out Outcome) {
	logger := logging.WithContext(ctx, o.logger)
	attrs := []logging.Attr{
		logging.String("state", string(out.State)),
		logging.Duration("elapsed", out.Elapsed),
	}
	switch out.State {
	case StateIdle:
		logger.Info("request finished", logging.Args(append(attrs, logging.Bool("stopped", out.Stopped))...)...)
	case StateRejected:
		logger.Info("request rejected", logging.Args(append(attrs,
			logging.DecisionAttrsWithRetry("request", "rejected", string(out.Kind), out.RetryAfter)...)...)...)
		o.feedback.Error(ctx)
	default:
		logging.WarnWithContext(logger, "request failed", "request_failed", append(attrs,
			logging.String("kind", string(out.Kind)),
			logging.Error(out.Err),
			logging.String(logging.FieldImpact, "video was not played"),
			logging.String(logging.FieldErrorHint, failureHint(out.Kind)),
		)...)
		o.feedback.Error(ctx)
	}
	for _, fn := range o.observers {
		fn(ctx, out)
	}
}

func failureHint(kind Kind) string {
	switch kind {
	case KindInvalidVideoID:
		return "the video is unavailable or private"
	case KindNetworkFailure:
		return "check the network connection"
	case KindDiskFull:
		return "free disk space or lower cache.max_gib"
	case KindDisplayUnavailable:
		return "check that mpv is running and the HDMI display is connected"
	case KindPlayerCrashed:
		return "inspect mpv output in the daemon log"
	case KindTimeout:
		return "raise player.max_play_minutes for longer videos"
	case KindInternal:
		return "check the database file and daemon log"
	default:
		return "retry the scan; see the daemon log for details"
	}
}

type silent struct{}

func (silent) Success(context.Context) {}
func (silent) Error(context.Context)   {}
