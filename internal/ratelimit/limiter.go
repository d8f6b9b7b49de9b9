package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/store"
)

// EventLog is the persisted play history the limiter reads and appends to.
// EventsSince must return events strictly after since in ascending played_at order.
type EventLog interface {
	EventsSince(ctx context.Context, since time.Time) ([]store.PlayEvent, error)
	AppendEvent(ctx context.Context, event store.PlayEvent) (store.PlayEvent, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is zero when allowed; otherwise the wait until enough events
	// leave the window for the count to drop below the limit.
	RetryAfter time.Duration
	// Count is the number of events inside the window at decision time.
	Count  int
	Policy Policy
}

// Remaining reports how many more videos the window admits right now.
func (d Decision) Remaining() int {
	if n := d.Policy.MaxVideos - d.Count; n > 0 {
		return n
	}
	return 0
}

// Limiter applies a Policy to an EventLog.
type Limiter struct {
	events EventLog
	policy PolicySource
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger attaches a logger for decision records.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New constructs a Limiter.
func New(events EventLog, policy PolicySource, opts ...Option) *Limiter {
	l := &Limiter{
		events: events,
		policy: policy,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.NewComponentLogger(l.logger, "ratelimit")
	return l
}

// Admit reports whether a new video may start at now. It records nothing.
func (l *Limiter) Admit(ctx context.Context, now time.Time) (Decision, error) {
	if l == nil || l.events == nil || l.policy == nil {
		return Decision{}, errors.New("rate limiter not configured")
	}
	policy, err := l.policy.Policy(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("load policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Decision{}, err
	}

	events, err := l.events.EventsSince(ctx, now.Add(-policy.Period))
	if err != nil {
		return Decision{}, fmt.Errorf("read play events: %w", err)
	}

	decision := Evaluate(policy, events, now)
	if decision.Allowed {
		l.logger.Debug("admission granted",
			logging.Args(append(logging.DecisionAttrs("admission", "allowed", "under limit"),
				logging.Int("count", decision.Count),
				logging.String("policy", policy.String()),
			)...)...,
		)
	} else {
		l.logger.Info("admission denied",
			logging.Args(append(logging.DecisionAttrsWithRetry("admission", "denied", "limit reached", decision.RetryAfter),
				logging.Int("count", decision.Count),
				logging.String("policy", policy.String()),
			)...)...,
		)
	}
	return decision, nil
}

// Record appends a play event. Call it only once playback is about to start.
func (l *Limiter) Record(ctx context.Context, event store.PlayEvent) (store.PlayEvent, error) {
	if l == nil || l.events == nil {
		return store.PlayEvent{}, errors.New("rate limiter not configured")
	}
	stored, err := l.events.AppendEvent(ctx, event)
	if err != nil {
		return store.PlayEvent{}, fmt.Errorf("record play event: %w", err)
	}
	return stored, nil
}

// Evaluate applies policy to events at now. Events must be sorted by
// PlayedAt ascending; events at or before now-Period are ignored.
func Evaluate(policy Policy, events []store.PlayEvent, now time.Time) Decision {
	windowStart := now.Add(-policy.Period)
	inWindow := make([]store.PlayEvent, 0, len(events))
	for _, event := range events {
		if event.PlayedAt.After(windowStart) {
			inWindow = append(inWindow, event)
		}
	}

	decision := Decision{Count: len(inWindow), Policy: policy}
	if decision.Count < policy.MaxVideos {
		decision.Allowed = true
		return decision
	}

	// The count drops below the limit once the event at index count-max
	// leaves the window, which happens at its played_at plus the period.
	pivot := inWindow[decision.Count-policy.MaxVideos]
	decision.RetryAfter = pivot.PlayedAt.Add(policy.Period).Sub(now)
	return decision
}
